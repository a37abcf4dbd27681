package engine

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikv/importer/internal/logutil"
)

func TestEngineSizeIndexMaterializesWithoutRescan(t *testing.T) {
	eng, err := Open(t.TempDir(), uuid.New(), logutil.New(0))
	require.NoError(t, err)
	defer eng.Cleanup()

	ctx := context.Background()
	require.NoError(t, eng.Write(ctx, []Mutation{
		{Key: []byte("a"), CommitTS: 1, Value: []byte("v1")},
		{Key: []byte("b"), CommitTS: 1, Value: []byte("v2")},
	}))

	idx, err := eng.SizeIndex()
	require.NoError(t, err)
	assert.Greater(t, idx.TotalSize(), uint64(0))

	require.NoError(t, eng.Close())
	idxAfterClose, err := eng.SizeIndex()
	require.NoError(t, err)
	assert.Equal(t, idx.TotalSize(), idxAfterClose.TotalSize())
}
