package engine

// rangePropertySize is the approximate number of data bytes between
// two consecutive SizeIndex boundary keys, matching engine.rs's
// PROP_SIZE_INDEX_DISTANCE (4 MiB).
const rangePropertySize = 4 << 20

// sizeProperty is one boundary-key sample: the key at which
// accumulated data size first reached Size bytes.
type sizeProperty struct {
	Key  []byte
	Size uint64
}

// SizeIndex is a sparse, sorted index of (boundary key, cumulative
// byte size) samples collected while data streams into an Engine. It
// lets PrepareJob carve a huge engine into pre-split, evenly-sized
// ranges without reading the data twice. Grounded on engine.rs's
// get_size_properties (built from RocksDB's RangePropertiesCollector)
// and its get_approximate_ranges algorithm.
type SizeIndex struct {
	props []sizeProperty
}

// NewSizeIndexCollector returns a collector that appends a
// sizeProperty to the returned *SizeIndex every rangePropertySize
// bytes of key+value data observed via Observe, in key order.
func NewSizeIndexCollector() *sizeIndexCollector {
	return &sizeIndexCollector{}
}

type sizeIndexCollector struct {
	index        SizeIndex
	accumulated  uint64
	sinceSampled uint64
	lastKey      []byte
}

// Observe records one entry's contribution to the running total. keys
// must be supplied in increasing order.
func (c *sizeIndexCollector) Observe(key []byte, entrySize uint64) {
	c.accumulated += entrySize
	c.sinceSampled += entrySize
	if c.sinceSampled < rangePropertySize {
		c.lastKey = append(c.lastKey[:0], key...)
		return
	}
	c.sinceSampled = 0
	c.index.props = append(c.index.props, sizeProperty{
		Key:  append([]byte(nil), key...),
		Size: c.accumulated,
	})
}

// Finish returns the completed SizeIndex. Data observed since the last
// sample is closed off by a final sample at the last observed key, so
// TotalSize covers every observed byte.
func (c *sizeIndexCollector) Finish() *SizeIndex {
	if c.sinceSampled == 0 {
		return &c.index
	}
	props := append(append([]sizeProperty(nil), c.index.props...), sizeProperty{
		Key:  append([]byte(nil), c.lastKey...),
		Size: c.accumulated,
	})
	return &SizeIndex{props: props}
}

// TotalSize returns the engine's total observed data size.
func (idx *SizeIndex) TotalSize() uint64 {
	if len(idx.props) == 0 {
		return 0
	}
	return idx.props[len(idx.props)-1].Size
}

// ApproximateRange is one proposed pre-split boundary: [Start, End)
// covering roughly Size bytes of the engine's data.
type ApproximateRange struct {
	Start []byte
	End   []byte
	Size  uint64
}

// GetApproximateRanges partitions the index into at most maxRanges
// contiguous ranges, merging any sampled segment smaller than
// minRangeSize into its neighbor, and returns them in key order. A nil
// Start/End means RANGE_MIN/RANGE_MAX (the engine's true open bounds),
// matching engine.rs's empty-slice sentinels.
//
// Ported directly from engine.rs's get_approximate_ranges, whose own
// test suite fixes the exact boundary behavior (e.g. three 4 MiB-ish
// samples split into 3 ranges at maxRanges=3, minRangeSize=0).
func (idx *SizeIndex) GetApproximateRanges(maxRanges int, minRangeSize uint64) []ApproximateRange {
	if len(idx.props) == 0 || maxRanges <= 0 {
		return []ApproximateRange{{Start: nil, End: nil, Size: idx.TotalSize()}}
	}

	total := idx.TotalSize()
	targetStep := total / uint64(maxRanges)
	if targetStep < minRangeSize {
		targetStep = minRangeSize
	}

	var ranges []ApproximateRange
	var rangeStart []byte
	var rangeStartSize uint64

	for i, p := range idx.props {
		isLast := i == len(idx.props)-1
		sizeSinceStart := p.Size - rangeStartSize

		if sizeSinceStart >= targetStep || (isLast && len(ranges) < maxRanges-1) {
			end := p.Key
			if isLast {
				end = nil
			}
			ranges = append(ranges, ApproximateRange{
				Start: rangeStart,
				End:   end,
				Size:  sizeSinceStart,
			})
			rangeStart = p.Key
			rangeStartSize = p.Size
		}
	}

	if rangeStartSize < total {
		ranges = append(ranges, ApproximateRange{
			Start: rangeStart,
			End:   nil,
			Size:  total - rangeStartSize,
		})
	}

	return mergeSmallRanges(ranges, minRangeSize)
}

func mergeSmallRanges(ranges []ApproximateRange, minRangeSize uint64) []ApproximateRange {
	if minRangeSize == 0 || len(ranges) <= 1 {
		return ranges
	}

	merged := make([]ApproximateRange, 0, len(ranges))
	for _, r := range ranges {
		if len(merged) > 0 && merged[len(merged)-1].Size < minRangeSize {
			prev := merged[len(merged)-1]
			merged[len(merged)-1] = ApproximateRange{
				Start: prev.Start,
				End:   r.End,
				Size:  prev.Size + r.Size,
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}
