package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeIndexGetApproximateRanges(t *testing.T) {
	c := NewSizeIndexCollector()
	// Each Observe reaches rangePropertySize, so every key is sampled
	// (five samples); modeled on
	// original_source/src/import/engine.rs's get_approximate_ranges test
	// fixture, they partition into 3 ranges [MIN,2), [2,5), [5,MAX).
	c.Observe([]byte{1}, rangePropertySize)
	c.Observe([]byte{2}, rangePropertySize)
	c.Observe([]byte{4}, rangePropertySize)
	c.Observe([]byte{5}, rangePropertySize)
	c.Observe([]byte{7}, rangePropertySize)
	idx := c.Finish()

	ranges := idx.GetApproximateRanges(3, 0)
	require.Len(t, ranges, 3)
	assert.Nil(t, ranges[0].Start)
	assert.Nil(t, ranges[len(ranges)-1].End)
	for i := 0; i < len(ranges)-1; i++ {
		assert.Equal(t, ranges[i].End, ranges[i+1].Start)
	}
}

func TestSizeIndexMergesSmallRanges(t *testing.T) {
	c := NewSizeIndexCollector()
	c.Observe([]byte{1}, rangePropertySize)
	c.Observe([]byte{2}, rangePropertySize/100) // much smaller than the target step
	c.Observe([]byte{3}, rangePropertySize)
	idx := c.Finish()

	ranges := idx.GetApproximateRanges(3, rangePropertySize/2)
	for _, r := range ranges {
		if r.End != nil { // the trailing range may legitimately end small
			assert.GreaterOrEqual(t, r.Size, uint64(rangePropertySize/2))
		}
	}
}

func TestSizeIndexEmpty(t *testing.T) {
	idx := NewSizeIndexCollector().Finish()
	assert.Equal(t, uint64(0), idx.TotalSize())
	ranges := idx.GetApproximateRanges(4, 0)
	require.Len(t, ranges, 1)
	assert.Nil(t, ranges[0].Start)
	assert.Nil(t, ranges[0].End)
}
