package job

import (
	"context"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/tikv/importer/internal/client"
	"github.com/tikv/importer/internal/engine"
	"github.com/tikv/importer/internal/errs"
	"github.com/tikv/importer/internal/importpb"
	"github.com/tikv/importer/internal/logutil"
)

// maxImportAttempts bounds the resolve-upload-ingest retry loop for one
// segment; exceeding it surfaces errs.ImportSSTJobFailed rather than
// retrying forever against a cluster that may never converge.
const maxImportAttempts = 8

// SSTImporter imports one engine segment into the target cluster:
// resolve its covering region, upload the segment's bytes to every
// peer, then ask the leader to ingest it. NotLeader and EpochNotMatch
// responses are retried locally with backoff rather than surfaced, per
// spec §7; a region that has since been split is re-resolved (and, if
// the split left the segment spanning more than one new region,
// re-cut) before retrying ingest.
type SSTImporter struct {
	cli client.ImportClient
	log logutil.Logger

	minAvailableRatio float64
}

// NewSSTImporter builds an SSTImporter. minAvailableRatio gates the
// disk-headroom check performed before every upload attempt.
func NewSSTImporter(cli client.ImportClient, log logutil.Logger, minAvailableRatio float64) *SSTImporter {
	return &SSTImporter{cli: cli, log: log, minAvailableRatio: minAvailableRatio}
}

// Import resolves info.RangeMin's covering region, checks disk
// headroom, uploads, and ingests. On a mid-segment re-split it
// recurses into reimportSplit to ingest each of the resulting
// sub-segments. On NotLeader it re-resolves the region and retries
// after a backoff; the leader named in the NotLeader error is not
// used, and ingest goes to the region's first peer. A failed headroom
// check returns *errs.ResourceTemporarilyUnavailable without retrying.
func (si *SSTImporter) Import(ctx context.Context, info *engine.SegmentInfo, eng *engine.Engine) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 2 * time.Second
	bo.MaxElapsedTime = 0 // bounded by maxImportAttempts instead of wall time

	var lastErr error
	for attempt := 0; attempt < maxImportAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(bo.NextBackOff()):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		region, err := si.resolveRegion(ctx, info.RangeMin)
		if err != nil {
			lastErr = err
			continue
		}

		if !beforeEnd(info.RangeMax, region.Region.EndKey) {
			// PrepareJob may have skipped splitting at this boundary (it is
			// best-effort), leaving the segment spanning more than the
			// resolved region. Re-cut it against whatever regions actually
			// cover it now and import the pieces individually instead of
			// uploading a segment the leader would just reject.
			shapes, err := si.coveringRegions(ctx, info.RangeMin, info.RangeMax)
			if err != nil {
				lastErr = err
				continue
			}
			if resplitErr := si.reimportSplit(ctx, info, eng, &errs.EpochNotMatch{CurrentRegions: shapes}); resplitErr == nil {
				return nil
			} else {
				lastErr = resplitErr
			}
			continue
		}

		if err := si.checkSpace(ctx, region); err != nil {
			var noSpace *errs.ResourceTemporarilyUnavailable
			if errorsAs(err, &noSpace) {
				return err
			}
			lastErr = err
			continue
		}

		err = si.uploadAndIngest(ctx, region, info)
		if err == nil {
			return nil
		}
		lastErr = err

		var epochErr *errs.EpochNotMatch
		if errorsAs(err, &epochErr) {
			// The region that used to cover this segment has split;
			// re-cut the segment against each of its current successors
			// and ingest them individually instead of retrying the whole
			// thing against a region that no longer spans the data.
			if resplitErr := si.reimportSplit(ctx, info, eng, epochErr); resplitErr == nil {
				return nil
			} else {
				lastErr = resplitErr
			}
			continue
		}
		if !errs.IsRetryable(err) {
			return errs.Wrap(err, "import segment")
		}
		si.log.Warn("retrying segment import",
			zap.Int("attempt", attempt), zap.Error(err))
	}

	return &errs.ImportSSTJobFailed{Msg: lastErr.Error()}
}

func (si *SSTImporter) resolveRegion(ctx context.Context, key []byte) (*importpb.RegionInfo, error) {
	info, err := si.cli.GetRegion(ctx, key)
	if err != nil {
		return nil, errs.Wrap(err, "resolve segment's region")
	}
	return info, nil
}

// coveringRegions walks PD from start to end, resolving each successive
// region along the way, and returns their [start,end) shapes. Used to
// re-cut a segment that spans more region than was resolved for its
// RangeMin, whether discovered proactively (before upload) or reactively
// (via an EpochNotMatch from ingest).
func (si *SSTImporter) coveringRegions(ctx context.Context, start, end []byte) ([]errs.RegionShape, error) {
	var shapes []errs.RegionShape
	key := start
	for {
		info, err := si.resolveRegion(ctx, key)
		if err != nil {
			return nil, err
		}
		shapes = append(shapes, errs.RegionShape{StartKey: info.Region.StartKey, EndKey: info.Region.EndKey})
		if beforeEnd(end, info.Region.EndKey) {
			break
		}
		key = info.Region.EndKey
	}
	return shapes, nil
}

func (si *SSTImporter) checkSpace(ctx context.Context, region *importpb.RegionInfo) error {
	ok, err := si.cli.IsSpaceEnough(ctx, region.Region, si.minAvailableRatio)
	if err != nil {
		return errs.Wrap(err, "check disk headroom")
	}
	if !ok {
		return &errs.ResourceTemporarilyUnavailable{Msg: "target store below min_available_ratio"}
	}
	return nil
}

func (si *SSTImporter) uploadAndIngest(ctx context.Context, region *importpb.RegionInfo, info *engine.SegmentInfo) error {
	meta, data, err := si.buildMeta(region, info)
	if err != nil {
		return err
	}
	defer data.Close()

	if err := si.cli.UploadSST(ctx, region.Region, meta, data); err != nil {
		return errs.Wrap(err, "upload sst")
	}
	return si.cli.IngestSST(ctx, region.Region, meta)
}

func (si *SSTImporter) buildMeta(region *importpb.RegionInfo, info *engine.SegmentInfo) (*importpb.SSTMeta, *os.File, error) {
	crc, err := info.Crc32()
	if err != nil {
		return nil, nil, errs.Wrap(err, "checksum segment")
	}
	length, err := info.Length()
	if err != nil {
		return nil, nil, errs.Wrap(err, "size segment")
	}

	f, err := os.Open(info.Path)
	if err != nil {
		return nil, nil, errs.Wrap(err, "open segment for upload")
	}

	sstID := newSegmentUUID()
	meta := &importpb.SSTMeta{
		Uuid:     sstID[:],
		RegionId: region.Region.Id,
		Epoch:    region.Region.Epoch,
		CfName:   string(info.CF),
		RangeMin: info.RangeMin,
		RangeMax: info.RangeMax,
		Crc32:    crc,
		Length:   length,
	}
	return meta, f, nil
}

// reimportSplit re-cuts info against each of epochErr's current regions
// and imports the sub-segments individually.
func (si *SSTImporter) reimportSplit(ctx context.Context, info *engine.SegmentInfo, eng *engine.Engine, epochErr *errs.EpochNotMatch) error {
	dir := os.TempDir()
	for _, shape := range epochErr.CurrentRegions {
		start, end := intersect(info.RangeMin, info.RangeMax, shape.StartKey, shape.EndKey)
		if start == nil && end == nil {
			continue
		}
		sub, err := eng.CutSegment(dir, newSegmentUUID(), start, end)
		if err != nil {
			return errs.Wrap(err, "re-cut segment after epoch change")
		}
		for _, s := range sub {
			if err := si.Import(ctx, s, eng); err != nil {
				return err
			}
		}
	}
	return nil
}
