package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeDecodeKeyRoundTrip(t *testing.T) {
	encoded := EncodeKey(nil, []byte("row1"), 42)
	userKey, ts := DecodeKey(encoded)
	assert.Equal(t, []byte("row1"), userKey)
	assert.Equal(t, uint64(42), ts)
}

func TestEncodeKeyOrdersNewestCommitFirst(t *testing.T) {
	older := EncodeKey(nil, []byte("row1"), 10)
	newer := EncodeKey(nil, []byte("row1"), 20)
	assert.Less(t, bytesCompare(newer, older), 0)
}

func TestIsShortValue(t *testing.T) {
	assert.True(t, isShortValue(make([]byte, shortValueThreshold)))
	assert.False(t, isShortValue(make([]byte, shortValueThreshold+1)))
}
