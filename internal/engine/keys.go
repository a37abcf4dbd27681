// Package engine implements the per-job staging store: Engine (an
// ephemeral pebble instance), SegmentWriter (sorted immutable SST
// segments split across "default"/"write" column families), and
// SizeIndex (the sparse boundary-key index used to cut segments at
// region-sized boundaries). Grounded on
// kwbase/pkg/storage/sst_writer.go (SSTWriter shape) and
// original_source/src/import/engine.rs (tuning, short/long value
// split, get_approximate_ranges).
package engine

import "encoding/binary"

// shortValueThreshold is the largest value size stored inline in the
// "write" column family; anything longer is stored in "default" with
// only a pointer record left in "write". Matches engine.rs's
// SHORT_VALUE_MAX_LEN.
const shortValueThreshold = 255

// EncodeKey appends the MVCC-encoded form of (userKey, commitTS) to
// dst and returns the result: userKey followed by commitTS as a
// big-endian uint64, descending-sorted by construction (see
// EncodeKey's doc on why commitTS is inverted).
//
// commitTS is inverted (^commitTS) before encoding so that, for a
// fixed userKey, keys sort with the newest commit first - matching
// how TiKV lays out MVCC versions in its "write" column family.
func EncodeKey(dst []byte, userKey []byte, commitTS uint64) []byte {
	dst = append(dst, userKey...)
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], ^commitTS)
	return append(dst, tsBuf[:]...)
}

// DecodeKey splits an MVCC-encoded key back into its user key and
// commit timestamp. It panics if encoded is shorter than 8 bytes,
// which would mean the encoded key is corrupt.
func DecodeKey(encoded []byte) (userKey []byte, commitTS uint64) {
	n := len(encoded)
	ts := binary.BigEndian.Uint64(encoded[n-8:])
	return encoded[:n-8], ^ts
}

// isShortValue reports whether value is small enough to be stored
// inline in the write CF rather than spilled to default.
func isShortValue(value []byte) bool {
	return len(value) <= shortValueThreshold
}
