package job

import (
	"bytes"
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tikv/importer/internal/client"
	"github.com/tikv/importer/internal/engine"
	"github.com/tikv/importer/internal/errs"
	"github.com/tikv/importer/internal/importpb"
	"github.com/tikv/importer/internal/logutil"
)

// PrepareJob pre-splits the target cluster at an engine's approximate
// range boundaries and scatters the resulting regions, so ImportJob
// later finds each segment's target region already sized and placed
// rather than racing PD's own balancer mid-import. Grounded on
// spec §4.4 and kwbase/pkg/sql/scatter.go's AdminScatter usage, with
// the poll-for-completion loop modeled on relocate.go.
type PrepareJob struct {
	cli client.ImportClient
	log logutil.Logger

	maxDuration  time.Duration
	pollInterval time.Duration
}

// NewPrepareJob builds a PrepareJob bounded by maxDuration (spec's
// max_prepare_duration): once elapsed, any region still mid-scatter is
// left as-is rather than blocking the import indefinitely.
func NewPrepareJob(cli client.ImportClient, log logutil.Logger, maxDuration time.Duration) *PrepareJob {
	return &PrepareJob{
		cli:          cli,
		log:          log,
		maxDuration:  maxDuration,
		pollInterval: 500 * time.Millisecond,
	}
}

// Run splits the target cluster at every ranges boundary and scatters
// each resulting region. A single boundary's split/scatter failure is
// logged and skipped - ImportJob's own RangeContext re-resolves
// regions as it goes, so a region that didn't get pre-split here is
// merely less efficient, not incorrect - matching the original's
// tolerance for prepare-phase partial failure.
func (j *PrepareJob) Run(ctx context.Context, ranges []engine.ApproximateRange) error {
	if len(ranges) == 0 {
		return nil
	}

	deadline := time.Now().Add(j.maxDuration)
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	splitKeys := make([][]byte, 0, len(ranges)-1)
	for _, r := range ranges[:len(ranges)-1] {
		if len(r.End) > 0 {
			splitKeys = append(splitKeys, r.End)
		}
	}
	if len(splitKeys) == 0 {
		return nil
	}

	task := j.log.Begin(zap.InfoLevel, "prepare range job")
	err := j.splitAndScatter(runCtx, splitKeys)
	task.End(zap.WarnLevel, err)
	return err
}

// splitAndScatter walks splitKeys in order, for each one: re-resolving
// the region that now covers it (earlier splits in this same loop may
// have changed which region that is), splitting there if the boundary
// isn't already a region start, and scattering every resulting region.
func (j *PrepareJob) splitAndScatter(ctx context.Context, splitKeys [][]byte) error {
	for _, boundary := range splitKeys {
		info, err := j.cli.GetRegion(ctx, boundary)
		if err != nil {
			j.log.Warn("resolve region to split failed, continuing without pre-split",
				zap.Error(err))
			continue
		}

		if bytes.Equal(boundary, info.Region.StartKey) {
			continue // boundary already a region start: nothing to split
		}

		regions, err := j.cli.SplitRegion(ctx, info.Region, boundary)
		if err != nil {
			j.log.Warn("split region failed, continuing without pre-split",
				zap.Error(err))
			continue
		}

		for _, region := range regions {
			if err := j.scatterAndWait(ctx, region); err != nil {
				j.log.Warn("scatter region failed, continuing",
					zap.Uint64("region_id", region.Id), zap.Error(err))
			}
		}
	}
	return nil
}

func (j *PrepareJob) scatterAndWait(ctx context.Context, region *importpb.Region) error {
	if err := j.cli.ScatterRegion(ctx, region.Id); err != nil {
		return errs.Wrap(err, "scatter region")
	}

	ticker := time.NewTicker(j.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil // max_prepare_duration elapsed: stop waiting, not an error
		case <-ticker.C:
			finished, err := j.cli.IsScatterRegionFinished(ctx, region.Id)
			if err != nil {
				return errs.Wrap(err, "poll scatter status")
			}
			if finished {
				return nil
			}
		}
	}
}
