package job

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tikv/importer/internal/client"
	"github.com/tikv/importer/internal/engine"
	"github.com/tikv/importer/internal/importpb"
	"github.com/tikv/importer/internal/logutil"
)

func TestImportJobCutsAndImportsAllKeys(t *testing.T) {
	eng := newTestEngine(t)
	ctx := context.Background()

	var muts []engine.Mutation
	for i := byte('a'); i <= 'j'; i++ {
		muts = append(muts, engine.Mutation{Key: []byte{i}, CommitTS: 1, Value: []byte("v")})
	}
	require.NoError(t, eng.Write(ctx, muts))
	require.NoError(t, eng.Close())

	region := regionFixture(1, nil, nil)
	cli := client.NewMockClient([]*importpb.Region{region})

	ij := NewImportJob(eng, cli, logutil.New(0), 1<<30, 0, 2, t.TempDir())
	require.NoError(t, ij.Run(ctx))
}

func TestImportJobEmptyEngineIsNoop(t *testing.T) {
	eng := newTestEngine(t)
	require.NoError(t, eng.Close())

	cli := client.NewMockClient([]*importpb.Region{regionFixture(1, nil, nil)})
	ij := NewImportJob(eng, cli, logutil.New(0), 1<<30, 0, 2, t.TempDir())
	require.NoError(t, ij.Run(context.Background()))
}
