package engine

import (
	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// SizeIndex returns the SizeIndex sampled incrementally as data was
// written to the engine's "write" CF (see Engine.Write), used by
// PrepareJob to compute pre-split points without a further pass over
// the data: the index materializes as a side effect of writing, the
// way a range-properties collector materializes alongside a flush.
func (e *Engine) SizeIndex() (*SizeIndex, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sizeIndex.Finish(), nil
}

// CutSegment writes every entry in [start, end) - across both CFs -
// into fresh segment files under dir, and returns one SegmentInfo per
// non-empty CF. An empty end means through the engine's maximum key.
func (e *Engine) CutSegment(dir string, id uuid.UUID, start, end []byte) ([]*SegmentInfo, error) {
	sw := newSegmentWriter(dir, id)

	for _, cf := range allCFs {
		if err := e.copyRangeInto(sw, cf, start, end); err != nil {
			return nil, errors.Wrapf(err, "cut %s segment", cf)
		}
	}

	return sw.Finish()
}

func (e *Engine) copyRangeInto(sw *segmentWriter, cf CF, start, end []byte) error {
	lower := EncodeBound(cf, start)
	upper := prefixUpperBound([]byte{cfPrefix(cf)})
	if len(end) > 0 {
		upper = EncodeBound(cf, end)
	}

	iter, err := e.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return errors.Wrap(err, "open cut iterator")
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		userKey, commitTS := DecodeKey(iter.Key()[1:])
		value := append([]byte(nil), iter.Value()...)

		sw.trackRange(userKey)
		if err := sw.put(cf, EncodeKey(nil, userKey, commitTS), value); err != nil {
			return err
		}
	}
	return iter.Error()
}

// EncodeBound builds the lower bound key for an iterator scanning cf
// starting from userKey (commitTS-agnostic: the CF prefix plus the raw
// user key sorts before every commitTS variant of that key).
func EncodeBound(cf CF, userKey []byte) []byte {
	return append([]byte{cfPrefix(cf)}, userKey...)
}

// prefixUpperBound returns the smallest key greater than every key
// starting with prefix, for use as an iterator's exclusive upper
// bound.
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}
	return nil // prefix was all 0xff bytes: no finite upper bound
}
