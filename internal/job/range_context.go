// Package job implements the per-import orchestration layer:
// RangeContext (decides where to cut a segment), PrepareJob (pre-splits
// and scatters the target cluster), SSTImporter (resolves, uploads,
// and ingests one segment), and ImportJob (fans a whole engine out
// across a bounded pool of SSTImporters). Grounded on
// original_source/src/import/common.rs (RangeContext),
// original_source/src/import/engine.rs and client.rs (the retry and
// resplit logic SSTImporter implements), and kwbase/pkg/sql/scatter.go
// plus kwbase/pkg/sql/relocate.go for the split/scatter RPC idiom.
package job

import (
	"bytes"
	"context"

	"github.com/tikv/importer/internal/client"
	"github.com/tikv/importer/internal/importpb"
	"github.com/tikv/importer/internal/logutil"
)

// rangeMin and rangeMax are empty-slice sentinels for "no lower bound"
// and "no upper bound" respectively - they are never compared to real
// keys, only checked for emptiness. Matches common.rs's RANGE_MIN /
// RANGE_MAX.
var (
	rangeMin = []byte{}
	rangeMax = []byte{}
)

// beforeEnd reports whether key sorts before end, treating an empty
// end as "no upper bound" (matches common.rs's before_end).
func beforeEnd(key, end []byte) bool {
	return len(end) == 0 || bytes.Compare(key, end) < 0
}

// insideRegion reports whether key falls within region's [start, end).
func insideRegion(key []byte, region *importpb.Region) bool {
	return bytes.Compare(key, region.StartKey) >= 0 && beforeEnd(key, region.EndKey)
}

// RangeContext tracks the accumulated byte size of the current segment
// and the target-cluster region its keys currently fall in, so
// ImportJob knows when to cut a new segment: either the size limit is
// reached, or the next key has walked out of the region. Grounded on
// common.rs's RangeContext exactly, including its test-fixed
// should_stop_before semantics.
type RangeContext struct {
	cli       client.ImportClient
	log       logutil.Logger
	region    *importpb.RegionInfo
	rawSize   int64
	limitSize int64
}

// NewRangeContext builds a RangeContext that cuts a segment once its
// accumulated size reaches limitSize bytes (spec's region_split_size).
func NewRangeContext(cli client.ImportClient, log logutil.Logger, limitSize int64) *RangeContext {
	return &RangeContext{cli: cli, log: log, limitSize: limitSize}
}

// Add accumulates size bytes into the current segment's running total.
func (rc *RangeContext) Add(size int64) {
	rc.rawSize += size
}

// RawSize returns the current segment's accumulated byte size.
func (rc *RangeContext) RawSize() int64 {
	return rc.rawSize
}

// Reset resets the accumulated size for the next segment and, if key
// has walked out of the previously resolved region, re-resolves it.
// A region lookup failure is logged and swallowed (not propagated):
// should_stop_before treats an unknown region as "never stop on region
// grounds", matching common.rs's behavior exactly.
func (rc *RangeContext) Reset(ctx context.Context, key []byte) {
	rc.rawSize = 0
	if rc.region != nil && beforeEnd(key, rc.region.Region.EndKey) {
		return
	}

	info, err := rc.cli.GetRegion(ctx, key)
	if err != nil {
		rc.log.Warn("get region failed while resetting range context", logutil.ShortError(err))
		rc.region = nil
		return
	}
	rc.region = info
}

// ShouldStopBefore reports whether a new segment should be cut before
// key is written: either the accumulated size limit was reached, or
// key has left the currently resolved region.
func (rc *RangeContext) ShouldStopBefore(key []byte) bool {
	if rc.rawSize >= rc.limitSize {
		return true
	}
	if rc.region == nil {
		return false
	}
	return !beforeEnd(key, rc.region.Region.EndKey)
}

// Region returns the context's currently resolved region, or nil if
// none has been resolved yet.
func (rc *RangeContext) Region() *importpb.RegionInfo {
	return rc.region
}

// NewRPCContext builds an importpb.Context addressed at region's
// leader, falling back to its first peer when no leader is known -
// matching common.rs's new_context.
func NewRPCContext(region *importpb.RegionInfo) *importpb.Context {
	peer := region.Leader
	if peer == nil && len(region.Region.Peers) > 0 {
		peer = region.Region.Peers[0]
	}
	return &importpb.Context{
		RegionId:    region.Region.Id,
		RegionEpoch: region.Region.Epoch,
		Peer:        peer,
	}
}
