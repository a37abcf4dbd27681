// Package service implements ClientFacade, the transport-agnostic
// surface external callers (BR, TiDB Lightning) drive: engine
// lifecycle (Open/Write/Close/Import/Cleanup), cluster-wide operations
// (SwitchMode/CompactCluster), and introspection (GetVersion/
// GetMetrics). Grounded on
// original_source/src/import/kv_service.rs's ImportKVService, whose
// try_engine! macro this mirrors by reflecting EngineNotFound/
// EngineInUse into typed response fields instead of raising.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/marusama/semaphore"

	"github.com/tikv/importer/internal/client"
	"github.com/tikv/importer/internal/engine"
	"github.com/tikv/importer/internal/errs"
	"github.com/tikv/importer/internal/importpb"
	"github.com/tikv/importer/internal/job"
	"github.com/tikv/importer/internal/logutil"
	"github.com/tikv/importer/internal/metrics"
	"github.com/tikv/importer/internal/registry"
)

// Response is the typed outcome every ClientFacade operation returns:
// either Err is nil and the operation fully succeeded, or Err holds the
// failure. Every failure kind lands in Err, not only EngineNotFound and
// EngineInUse; callers tell those two apart from other failures with
// errors.As.
type Response struct {
	Err error
}

// ClientFacade is the service surface built on top of a KVImporter
// registry; everything it does is transport-agnostic. No gRPC framing
// is done here, and cmd/tikv-importer does not serve it over gRPC either.
type ClientFacade struct {
	registry  *registry.KVImporter
	cli       client.ImportClient
	log       logutil.Logger
	metrics   *metrics.Metrics
	importSem semaphore.Semaphore

	regionSplitSize    int64
	minAvailableRatio  float64
	numImportSSTJobs   int
	maxPrepareDuration time.Duration
	workDir            string
}

// Config bundles the tunables ClientFacade needs from the process
// configuration, so this package doesn't import internal/config
// directly (kept decoupled per spec's layering: service depends on
// job/engine/registry, not on how it was configured).
type Config struct {
	RegionSplitSize    int64
	MinAvailableRatio  float64
	NumImportJobs      int
	NumImportSSTJobs   int
	MaxPrepareDuration time.Duration
	WorkDir            string
}

// New builds a ClientFacade over reg, talking to the target cluster
// through cli. NumImportJobs bounds how many engines may be Importing
// at once across the whole process (spec §4.6/§5); a value <= 0 is
// treated as 1 so the semaphore is never built with zero capacity.
func New(reg *registry.KVImporter, cli client.ImportClient, log logutil.Logger, m *metrics.Metrics, cfg Config) *ClientFacade {
	numImportJobs := cfg.NumImportJobs
	if numImportJobs <= 0 {
		numImportJobs = 1
	}
	return &ClientFacade{
		registry:           reg,
		cli:                cli,
		log:                log,
		metrics:            m,
		importSem:          semaphore.New(numImportJobs),
		regionSplitSize:    cfg.RegionSplitSize,
		minAvailableRatio:  cfg.MinAvailableRatio,
		numImportSSTJobs:   cfg.NumImportSSTJobs,
		maxPrepareDuration: cfg.MaxPrepareDuration,
		workDir:            cfg.WorkDir,
	}
}

// OpenEngine opens (creating if needed) the engine identified by id.
func (f *ClientFacade) OpenEngine(ctx context.Context, id uuid.UUID) Response {
	f.metrics.RequestsTotal.WithLabelValues("open_engine").Inc()
	return asTypedResponse(f.registry.OpenEngine(ctx, id))
}

// WriteEngine streams mutations into id's engine from batches, one
// batch at a time, matching kv_service.rs's streaming write_engine
// handler (as opposed to the unary WriteEngineV3 path).
func (f *ClientFacade) WriteEngine(ctx context.Context, id uuid.UUID, batches <-chan []engine.Mutation) Response {
	f.metrics.RequestsTotal.WithLabelValues("write_engine").Inc()
	for batch := range batches {
		if err := f.registry.Write(ctx, id, batch); err != nil {
			return asTypedResponse(err)
		}
		f.metrics.BytesWritten.Add(float64(batchBytes(batch)))
	}
	return Response{}
}

// WriteEngineV3 applies a single already-assembled batch of mutations
// in one call, matching kv_service.rs's unary write_engine_v3 handler
// (used by callers that prefer not to manage a stream).
func (f *ClientFacade) WriteEngineV3(ctx context.Context, id uuid.UUID, mutations []engine.Mutation) Response {
	f.metrics.RequestsTotal.WithLabelValues("write_engine_v3").Inc()
	err := f.registry.Write(ctx, id, mutations)
	if err == nil {
		f.metrics.BytesWritten.Add(float64(batchBytes(mutations)))
	}
	return asTypedResponse(err)
}

// CloseEngine finalizes id's engine for writes.
func (f *ClientFacade) CloseEngine(id uuid.UUID) Response {
	f.metrics.RequestsTotal.WithLabelValues("close_engine").Inc()
	return asTypedResponse(f.registry.CloseEngine(id))
}

// ImportEngine pre-splits/scatters the target cluster to fit id's
// engine, then imports every segment, finally returning the engine to
// Closed (on failure) or Imported (on success). A second Import on an
// already-Imported engine is a no-op. At most NumImportJobs engines may
// be Importing across the process at once; ImportEngine blocks on that
// bound before calling BeginImport.
func (f *ClientFacade) ImportEngine(ctx context.Context, id uuid.UUID) Response {
	f.metrics.RequestsTotal.WithLabelValues("import_engine").Inc()

	if state, err := f.registry.State(id); err == nil && state == registry.StateImported {
		return Response{}
	}

	if err := f.importSem.Acquire(ctx, 1); err != nil {
		return Response{Err: errs.Wrap(err, "acquire import-job slot")}
	}
	defer f.importSem.Release(1)

	eng, err := f.registry.BeginImport(id)
	if err != nil {
		return asTypedResponse(err)
	}

	importErr := f.runImport(ctx, eng)
	if finishErr := f.registry.FinishImport(id, importErr); finishErr != nil {
		if importErr == nil {
			return asTypedResponse(finishErr)
		}
	}
	if importErr != nil {
		f.metrics.ImportFailuresTotal.Inc()
		return Response{Err: importErr}
	}
	return Response{}
}

func (f *ClientFacade) runImport(ctx context.Context, eng *engine.Engine) error {
	sizeIndex, err := eng.SizeIndex()
	if err != nil {
		return errs.Wrap(err, "build size index")
	}
	ranges := sizeIndex.GetApproximateRanges(f.numImportSSTJobs, f.regionSplitSize)

	prep := job.NewPrepareJob(f.cli, f.log, f.maxPrepareDuration)
	if err := prep.Run(ctx, ranges); err != nil {
		return &errs.PrepareRangeJobFailed{Msg: err.Error()}
	}

	importJob := job.NewImportJob(eng, f.cli, f.log, f.regionSplitSize, f.minAvailableRatio, f.numImportSSTJobs, f.workDir)
	return importJob.Run(ctx)
}

// CleanupEngine removes id's engine entirely.
func (f *ClientFacade) CleanupEngine(id uuid.UUID) Response {
	f.metrics.RequestsTotal.WithLabelValues("cleanup_engine").Inc()
	return asTypedResponse(f.registry.Cleanup(id))
}

// SwitchMode broadcasts a mode change (Normal/Import) to every
// non-tombstone store, matching client.rs's switch_cluster fan-out:
// a single store's failure is logged and skipped rather than failing
// the whole call.
func (f *ClientFacade) SwitchMode(ctx context.Context, stores []uint64, mode importpb.Mode, fanout func(context.Context, uint64, importpb.Mode) error) Response {
	f.metrics.RequestsTotal.WithLabelValues("switch_mode").Inc()
	for _, store := range stores {
		if err := fanout(ctx, store, mode); err != nil {
			f.log.Warn("switch mode failed for store, continuing")
		}
	}
	return Response{}
}

// CompactCluster triggers a manual compaction across every
// non-tombstone store within the given range/cf, with the same
// best-effort fan-out as SwitchMode.
func (f *ClientFacade) CompactCluster(ctx context.Context, stores []uint64, startKey, endKey []byte, cf string, fanout func(context.Context, uint64, []byte, []byte, string) error) Response {
	f.metrics.RequestsTotal.WithLabelValues("compact_cluster").Inc()
	for _, store := range stores {
		if err := fanout(ctx, store, startKey, endKey, cf); err != nil {
			f.log.Warn("compact cluster failed for store, continuing")
		}
	}
	return Response{}
}

// GetVersion returns the service's build version string.
func (f *ClientFacade) GetVersion() string {
	return buildVersion
}

// GetMetrics dumps the current Prometheus metrics as exposition text.
func (f *ClientFacade) GetMetrics() (string, error) {
	f.metrics.RequestsTotal.WithLabelValues("get_metrics").Inc()
	return f.metrics.Dump()
}

func asTypedResponse(err error) Response {
	return Response{Err: err}
}

func batchBytes(mutations []engine.Mutation) int {
	total := 0
	for _, m := range mutations {
		total += len(m.Key) + len(m.Value) + 8
	}
	return total
}

// buildVersion is overridden at link time via -ldflags in release
// builds; left as a placeholder default for development builds.
var buildVersion = "dev"
