package engine

import (
	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
)

// WalkFunc is called once per entry in the engine's write CF, in key
// order. Returning an error stops the walk and propagates the error.
type WalkFunc func(userKey []byte, entrySize int64) error

// WalkKeys iterates every entry in the engine's write CF (one per MVCC
// version written) in ascending key order, calling fn with each user
// key and its total on-disk contribution. Used by ImportJob to drive
// RangeContext's size/region-based cut decisions one key at a time,
// the same granularity original_source/src/import/common.rs's
// RangeContext.add/should_stop_before operate at.
func (e *Engine) WalkKeys(fn WalkFunc) error {
	prefix := []byte{cfPrefix(CFWrite)}
	iter, err := e.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return errors.Wrap(err, "open walk iterator")
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		userKey, _ := DecodeKey(iter.Key()[1:])
		entrySize := int64(len(iter.Key()) + len(iter.Value()))
		if err := fn(userKey, entrySize); err != nil {
			return err
		}
	}
	return errors.Wrap(iter.Error(), "walk engine keys")
}
