package engine

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikv/importer/internal/errs"
)

func TestSegmentWriterSplitsShortAndLongValues(t *testing.T) {
	dir := t.TempDir()
	sw := newSegmentWriter(dir, uuid.New())

	shortVal := make([]byte, 10)
	longVal := make([]byte, shortValueThreshold+1)

	require.NoError(t, sw.Put([]byte("a"), 1, shortVal))
	require.NoError(t, sw.Put([]byte("b"), 1, longVal))

	infos, err := sw.Finish()
	require.NoError(t, err)

	byCF := make(map[CF]*SegmentInfo)
	for _, info := range infos {
		byCF[info.CF] = info
	}

	// "a"'s short value only ever touches the write CF; "b"'s long value
	// additionally leaves a pointer entry in write and its bytes in
	// default, so both CFs must have produced a segment file.
	require.Contains(t, byCF, CFWrite)
	require.Contains(t, byCF, CFDefault)

	length, err := byCF[CFDefault].Length()
	require.NoError(t, err)
	require.Greater(t, length, uint64(0))
}

func TestSegmentWriterRejectsNonIncreasingKeys(t *testing.T) {
	sw := newSegmentWriter(t.TempDir(), uuid.New())
	require.NoError(t, sw.Put([]byte("b"), 1, []byte("v")))

	err := sw.Put([]byte("a"), 1, []byte("v"))
	var invalid *errs.InvalidInput
	assert.ErrorAs(t, err, &invalid)

	err = sw.Put([]byte("b"), 1, []byte("v"))
	assert.ErrorAs(t, err, &invalid)
}

func TestSegmentWriterNoFilesWithoutEntries(t *testing.T) {
	sw := newSegmentWriter(t.TempDir(), uuid.New())
	infos, err := sw.Finish()
	require.NoError(t, err)
	require.Empty(t, infos)
}
