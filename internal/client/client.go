// Package client defines the single dynamic-dispatch seam between the
// core and the target cluster: ImportClient. A production
// implementation talks to PD and the stores over gRPC; tests use an
// in-memory mock (see mock.go). This mirrors
// original_source/src/import/client.rs's ImportClient trait.
package client

import (
	"context"
	"io"

	"github.com/tikv/importer/internal/importpb"
)

// ImportClient is everything the core needs from the target cluster.
// It is implemented once for production (GRPCClient) and once for
// tests (MockClient); nothing else in this module talks to PD or a
// store directly.
type ImportClient interface {
	// GetRegion returns the region (and current leader) covering key.
	GetRegion(ctx context.Context, key []byte) (*importpb.RegionInfo, error)

	// SplitRegion splits region at splitKey and returns the resulting
	// regions in key order. One call handles one boundary key: the
	// region covering the next boundary generally changes after each
	// split, so callers re-resolve between calls rather than batching
	// several boundaries against one stale region.
	SplitRegion(ctx context.Context, region *importpb.Region, splitKey []byte) ([]*importpb.Region, error)

	// ScatterRegion asks PD to begin rebalancing region's replicas.
	ScatterRegion(ctx context.Context, regionID uint64) error

	// IsScatterRegionFinished reports whether a prior ScatterRegion call
	// has completed (or the region ceased to exist, which is treated as
	// finished: spec'd after client.rs's RegionNotFound => true case).
	IsScatterRegionFinished(ctx context.Context, regionID uint64) (bool, error)

	// UploadSST streams a segment's bytes, framed as chunks, to every
	// peer of region. The reader is consumed from the current offset to
	// EOF.
	UploadSST(ctx context.Context, region *importpb.Region, meta *importpb.SSTMeta, data io.Reader) error

	// IngestSST asks region's leader to ingest a previously uploaded
	// segment. A *errs.NotLeader or *errs.EpochNotMatch error means the
	// caller should re-resolve and retry.
	IngestSST(ctx context.Context, region *importpb.Region, meta *importpb.SSTMeta) error

	// HasRegionID reports whether a region with the given id still
	// exists, used by SSTImporter to detect a mid-segment re-split that
	// obsoleted its target region.
	HasRegionID(ctx context.Context, regionID uint64) (bool, error)

	// IsSpaceEnough reports whether every peer store of region has more
	// than minAvailableRatio of its capacity free.
	IsSpaceEnough(ctx context.Context, region *importpb.Region, minAvailableRatio float64) (bool, error)
}
