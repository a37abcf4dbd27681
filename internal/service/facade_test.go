package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikv/importer/internal/client"
	"github.com/tikv/importer/internal/engine"
	"github.com/tikv/importer/internal/errs"
	"github.com/tikv/importer/internal/importpb"
	"github.com/tikv/importer/internal/logutil"
	"github.com/tikv/importer/internal/metrics"
	"github.com/tikv/importer/internal/registry"
)

func newTestFacade(t *testing.T) (*ClientFacade, *client.MockClient) {
	t.Helper()
	region := &importpb.Region{
		Id:    1,
		Epoch: &importpb.RegionEpoch{ConfVer: 1, Version: 1},
		Peers: []*importpb.Peer{{Id: 1, StoreId: 1}},
	}
	cli := client.NewMockClient([]*importpb.Region{region})
	reg := registry.New(t.TempDir(), 4, logutil.New(0))
	f := New(reg, cli, logutil.New(0), metrics.New(), Config{
		RegionSplitSize:    1 << 30,
		MinAvailableRatio:  0,
		NumImportJobs:      2,
		NumImportSSTJobs:   2,
		MaxPrepareDuration: time.Second,
		WorkDir:            t.TempDir(),
	})
	return f, cli
}

func TestClientFacadeFullLifecycle(t *testing.T) {
	f, _ := newTestFacade(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, f.OpenEngine(ctx, id).Err)
	require.NoError(t, f.WriteEngineV3(ctx, id, []engine.Mutation{
		{Key: []byte("a"), CommitTS: 1, Value: []byte("v")},
	}).Err)
	require.NoError(t, f.CloseEngine(id).Err)
	require.NoError(t, f.ImportEngine(ctx, id).Err)
	require.NoError(t, f.CleanupEngine(id).Err)
}

func TestClientFacadeCloseAndImportAreIdempotent(t *testing.T) {
	f, _ := newTestFacade(t)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, f.OpenEngine(ctx, id).Err)
	require.NoError(t, f.WriteEngineV3(ctx, id, []engine.Mutation{
		{Key: []byte("a"), CommitTS: 1, Value: []byte("v")},
	}).Err)
	require.NoError(t, f.CloseEngine(id).Err)
	require.NoError(t, f.CloseEngine(id).Err) // second Close is a no-op, not EngineInUse

	require.NoError(t, f.ImportEngine(ctx, id).Err)
	require.NoError(t, f.ImportEngine(ctx, id).Err) // second Import is a no-op, not EngineInUse

	require.NoError(t, f.CleanupEngine(id).Err)
}

func TestClientFacadeEngineNotFound(t *testing.T) {
	f, _ := newTestFacade(t)
	resp := f.WriteEngineV3(context.Background(), uuid.New(), nil)
	var notFound *errs.EngineNotFound
	assert.ErrorAs(t, resp.Err, &notFound)
}

func TestClientFacadeGetMetricsAndVersion(t *testing.T) {
	f, _ := newTestFacade(t)
	assert.Equal(t, "dev", f.GetVersion())
	text, err := f.GetMetrics()
	require.NoError(t, err)
	assert.Contains(t, text, "tikv_importer_requests_total")
}
