package job

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tikv/importer/internal/client"
	"github.com/tikv/importer/internal/engine"
	"github.com/tikv/importer/internal/errs"
	"github.com/tikv/importer/internal/logutil"
)

// ImportJob walks an engine's keys in order, uses a RangeContext to
// decide where to cut a segment, and dispatches each cut segment to a
// bounded pool of SSTImporters. Grounded on spec §4.6 and
// kwbase/pkg/kv/bulk/sst_batcher.go's flush-at-boundary batching
// pattern, generalized from "flush a SQL batch" to "cut a segment".
type ImportJob struct {
	eng *engine.Engine
	si  *SSTImporter
	rc  *RangeContext
	log logutil.Logger

	numWorkers int
	workDir    string
}

// NewImportJob builds an ImportJob. numWorkers bounds the number of
// segments imported concurrently (spec's num_import_sst_jobs).
func NewImportJob(eng *engine.Engine, cli client.ImportClient, log logutil.Logger, regionSplitSize int64, minAvailableRatio float64, numWorkers int, workDir string) *ImportJob {
	return &ImportJob{
		eng:        eng,
		si:         NewSSTImporter(cli, log, minAvailableRatio),
		rc:         NewRangeContext(cli, log, regionSplitSize),
		log:        log,
		numWorkers: numWorkers,
		workDir:    workDir,
	}
}

// Run cuts the engine into segments and imports them all, returning
// the first segment failure encountered (if any) wrapped as
// errs.ImportJobFailed. Segments already dispatched when a failure
// occurs are allowed to finish rather than being canceled: each
// segment targets an independent region, so a partial import is still
// useful progress.
func (j *ImportJob) Run(ctx context.Context) error {
	task := j.log.Begin(zap.InfoLevel, "import job")

	segCh := make(chan *engine.SegmentInfo)
	errCh := make(chan error, j.numWorkers)

	var wg sync.WaitGroup
	for i := 0; i < j.numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for seg := range segCh {
				if err := j.si.Import(ctx, seg, j.eng); err != nil {
					select {
					case errCh <- err:
					default: // buffer full: an earlier failure is already recorded
					}
				}
			}
		}()
	}

	cutErr := j.cutSegments(ctx, segCh)
	close(segCh)
	wg.Wait()
	close(errCh)

	firstErr := cutErr
	for err := range errCh {
		if firstErr == nil {
			firstErr = err
		}
	}

	task.End(zap.ErrorLevel, firstErr)
	if firstErr != nil {
		return &errs.ImportJobFailed{Msg: firstErr.Error()}
	}
	return nil
}

// cutSegments walks the engine's keys, using RangeContext to decide
// cut points, and emits one CutSegment call - and its resulting
// SegmentInfos - per cut onto segCh.
func (j *ImportJob) cutSegments(ctx context.Context, segCh chan<- *engine.SegmentInfo) error {
	var segStart []byte
	haveKeys := false

	cutAt := func(end []byte) error {
		infos, err := j.eng.CutSegment(j.workDir, newSegmentUUID(), segStart, end)
		if err != nil {
			return errs.Wrap(err, "cut segment")
		}
		for _, info := range infos {
			select {
			case segCh <- info:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		segStart = end
		return nil
	}

	err := j.eng.WalkKeys(func(userKey []byte, entrySize int64) error {
		if !haveKeys {
			segStart = append([]byte(nil), userKey...)
			j.rc.Reset(ctx, userKey)
			haveKeys = true
		} else if j.rc.ShouldStopBefore(userKey) {
			if err := cutAt(userKey); err != nil {
				return err
			}
			j.rc.Reset(ctx, userKey)
		}
		j.rc.Add(entrySize)
		return nil
	})
	if err != nil {
		return err
	}
	if !haveKeys {
		return nil
	}
	return cutAt(nil)
}
