package registry

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikv/importer/internal/engine"
	"github.com/tikv/importer/internal/errs"
	"github.com/tikv/importer/internal/logutil"
)

func TestKVImporterLifecycle(t *testing.T) {
	r := New(t.TempDir(), 4, logutil.New(0))
	id := uuid.New()
	ctx := context.Background()

	require.NoError(t, r.OpenEngine(ctx, id))
	state, err := r.State(id)
	require.NoError(t, err)
	assert.Equal(t, StateOpen, state)

	require.NoError(t, r.Write(ctx, id, []engine.Mutation{{Key: []byte("a"), CommitTS: 1, Value: []byte("v")}}))
	state, _ = r.State(id)
	assert.Equal(t, StateWriting, state)

	require.NoError(t, r.CloseEngine(id))
	state, _ = r.State(id)
	assert.Equal(t, StateClosed, state)

	eng, err := r.BeginImport(id)
	require.NoError(t, err)
	require.NotNil(t, eng)
	state, _ = r.State(id)
	assert.Equal(t, StateImporting, state)

	require.NoError(t, r.FinishImport(id, nil))
	state, _ = r.State(id)
	assert.Equal(t, StateImported, state)

	require.NoError(t, r.Cleanup(id))
	_, err = r.State(id)
	var notFound *errs.EngineNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestKVImporterCloseEngineIsIdempotent(t *testing.T) {
	r := New(t.TempDir(), 4, logutil.New(0))
	id := uuid.New()
	ctx := context.Background()

	require.NoError(t, r.OpenEngine(ctx, id))
	require.NoError(t, r.CloseEngine(id))
	require.NoError(t, r.CloseEngine(id)) // second Close is a no-op
}

func TestKVImporterCleanupRequiresImported(t *testing.T) {
	r := New(t.TempDir(), 4, logutil.New(0))
	id := uuid.New()
	ctx := context.Background()

	require.NoError(t, r.OpenEngine(ctx, id))
	var inUse *errs.EngineInUse
	assert.ErrorAs(t, r.Cleanup(id), &inUse) // Open, not Imported: rejected

	require.NoError(t, r.CloseEngine(id))
	assert.ErrorAs(t, r.Cleanup(id), &inUse) // Closed, not Imported: rejected

	eng, err := r.BeginImport(id)
	require.NoError(t, err)
	require.NotNil(t, eng)
	require.NoError(t, r.FinishImport(id, nil))
	require.NoError(t, r.Cleanup(id)) // Imported: allowed
}

func TestKVImporterEngineNotFound(t *testing.T) {
	r := New(t.TempDir(), 4, logutil.New(0))
	var notFound *errs.EngineNotFound
	_, err := r.State(uuid.New())
	assert.ErrorAs(t, err, &notFound)
}

func TestKVImporterRejectsWriteAfterClose(t *testing.T) {
	r := New(t.TempDir(), 4, logutil.New(0))
	id := uuid.New()
	ctx := context.Background()

	require.NoError(t, r.OpenEngine(ctx, id))
	require.NoError(t, r.CloseEngine(id))

	err := r.Write(ctx, id, []engine.Mutation{{Key: []byte("a"), CommitTS: 1, Value: []byte("v")}})
	var inUse *errs.EngineInUse
	assert.ErrorAs(t, err, &inUse)
}

func TestKVImporterBoundsMaxOpenEngines(t *testing.T) {
	r := New(t.TempDir(), 1, logutil.New(0))
	ctx := context.Background()

	first := uuid.New()
	require.NoError(t, r.OpenEngine(ctx, first))

	ctx2, cancel := context.WithTimeout(ctx, 0)
	defer cancel()
	second := uuid.New()
	err := r.OpenEngine(ctx2, second)
	assert.Error(t, err) // semaphore is exhausted: open-engine slot unavailable

	require.NoError(t, r.CloseEngine(first))
	require.NoError(t, r.OpenEngine(ctx, second)) // released by CloseEngine
}
