package job

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tikv/importer/internal/client"
	"github.com/tikv/importer/internal/engine"
	"github.com/tikv/importer/internal/importpb"
	"github.com/tikv/importer/internal/logutil"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng, err := engine.Open(t.TempDir(), uuid.New(), logutil.New(0))
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Cleanup() })
	return eng
}

func TestSSTImporterRetriesOnNotLeader(t *testing.T) {
	eng := newTestEngine(t)
	require.NoError(t, eng.Write(context.Background(), []engine.Mutation{
		{Key: []byte("a"), CommitTS: 1, Value: []byte("v")},
	}))
	require.NoError(t, eng.Close())

	segs, err := eng.CutSegment(t.TempDir(), uuid.New(), nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, segs)

	region := regionFixture(1, nil, nil)
	cli := client.NewMockClient([]*importpb.Region{region})
	cli.FailNotLeaderOnce[region.Id] = true

	si := NewSSTImporter(cli, logutil.New(0), 0)
	require.NoError(t, si.Import(context.Background(), segs[0], eng))
	require.False(t, cli.FailNotLeaderOnce[region.Id]) // the flag was consumed by the first attempt
}

func TestSSTImporterDiskHeadroomBlocksUpload(t *testing.T) {
	eng := newTestEngine(t)
	require.NoError(t, eng.Write(context.Background(), []engine.Mutation{
		{Key: []byte("a"), CommitTS: 1, Value: []byte("v")},
	}))
	require.NoError(t, eng.Close())

	segs, err := eng.CutSegment(t.TempDir(), uuid.New(), nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, segs)

	region := regionFixture(1, nil, nil)
	cli := client.NewMockClient([]*importpb.Region{region})
	cli.StoreAvailableRatio[1] = 0.0 // below any positive min ratio

	si := NewSSTImporter(cli, logutil.New(0), 0.1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // a canceled context keeps any retry wait from blocking the test
	err = si.Import(ctx, segs[0], eng)
	require.Error(t, err)
}

func TestSSTImporterResplitsOnRegionSplitBetweenCutAndIngest(t *testing.T) {
	eng := newTestEngine(t)
	require.NoError(t, eng.Write(context.Background(), []engine.Mutation{
		{Key: []byte("a"), CommitTS: 1, Value: []byte("v")},
		{Key: []byte("n"), CommitTS: 1, Value: []byte("v")},
		{Key: []byte("p"), CommitTS: 1, Value: []byte("v")},
	}))
	require.NoError(t, eng.Close())

	segs, err := eng.CutSegment(t.TempDir(), uuid.New(), nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, segs)

	// The segment was cut while a single region covered the whole
	// keyspace; split it into two before ingest is attempted, so the
	// segment's [min,max) now spans both halves.
	region := regionFixture(1, nil, nil)
	cli := client.NewMockClient([]*importpb.Region{region})
	_, err = cli.SplitRegion(context.Background(), region, []byte("m"))
	require.NoError(t, err)

	si := NewSSTImporter(cli, logutil.New(0), 0)
	require.NoError(t, si.Import(context.Background(), segs[0], eng))

	ids := cli.IngestedRegionIDs()
	require.Len(t, ids, 2) // both post-split halves ended up ingested
}
