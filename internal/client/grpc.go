package client

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tikv/importer/internal/errs"
	"github.com/tikv/importer/internal/importpb"
	"github.com/tikv/importer/internal/logutil"
)

const uploadChunkSize = 1 << 20 // 1 MiB, matches client.rs's UPLOAD_CHUNK_SIZE

// PDClient is the subset of a PD RPC stub GRPCClient needs to resolve
// regions and drive scatter/split. It is an interface so tests can
// substitute a fake without standing up a real PD.
type PDClient interface {
	GetRegion(ctx context.Context, key []byte) (*importpb.RegionInfo, error)
	GetStore(ctx context.Context, storeID uint64) (addr string, err error)
	GetStoreStats(ctx context.Context, storeID uint64) (*importpb.StoreStats, error)
	ScatterRegion(ctx context.Context, regionID uint64) error
	GetOperator(ctx context.Context, regionID uint64) (*importpb.GetOperatorResponse, error)
}

// GRPCClient is the production ImportClient: it resolves store
// addresses via PD, caches one *grpc.ClientConn per store, and evicts
// a cached channel the first time an RPC over it fails (client.rs's
// resolve/post_resolve pattern).
type GRPCClient struct {
	pd     PDClient
	log    logutil.Logger
	limiter *rate.Limiter

	mu       sync.Mutex
	channels map[uint64]*grpc.ClientConn
}

// NewGRPCClient builds a GRPCClient. uploadBytesPerSec bounds the
// aggregate rate of all UploadSST calls made through this client,
// matching the process-wide upload speed limit of spec §5.
func NewGRPCClient(pd PDClient, log logutil.Logger, uploadBytesPerSec int64) *GRPCClient {
	return &GRPCClient{
		pd:       pd,
		log:      log,
		limiter:  rate.NewLimiter(rate.Limit(uploadBytesPerSec), uploadChunkSize),
		channels: make(map[uint64]*grpc.ClientConn),
	}
}

func (c *GRPCClient) GetRegion(ctx context.Context, key []byte) (*importpb.RegionInfo, error) {
	info, err := c.pd.GetRegion(ctx, key)
	if err != nil {
		return nil, errs.Wrap(err, "get region")
	}
	return info, nil
}

func (c *GRPCClient) SplitRegion(ctx context.Context, region *importpb.Region, splitKey []byte) ([]*importpb.Region, error) {
	conn, err := c.resolve(ctx, leaderStore(region))
	if err != nil {
		return nil, err
	}

	req := &importpb.SplitRegionRequest{
		Context: &importpb.Context{
			RegionId:    region.Id,
			RegionEpoch: region.Epoch,
		},
		SplitKeys: [][]byte{splitKey},
	}
	resp := new(importpb.SplitRegionResponse)
	if err := conn.Invoke(ctx, "/importpb.Import/SplitRegion", req, resp); err != nil {
		c.postResolve(leaderStore(region), err)
		return nil, errs.Wrap(err, "split region")
	}
	if storeErr := storeError(resp.Error); storeErr != nil {
		return nil, storeErr
	}
	return resp.Regions, nil
}

func (c *GRPCClient) ScatterRegion(ctx context.Context, regionID uint64) error {
	if err := c.pd.ScatterRegion(ctx, regionID); err != nil {
		return errs.Wrap(err, "scatter region")
	}
	return nil
}

func (c *GRPCClient) IsScatterRegionFinished(ctx context.Context, regionID uint64) (bool, error) {
	resp, err := c.pd.GetOperator(ctx, regionID)
	if err != nil {
		// A NotLeader or EpochNotMatch error (errs.IsRetryable) is treated
		// as "finished", so callers stop polling a region whose shape has
		// changed. A vanished region is not detected separately here; any
		// other error is returned.
		if errs.IsRetryable(err) {
			return true, nil
		}
		return false, errs.Wrap(err, "get operator")
	}
	switch resp.Status {
	case importpb.OperatorStatusRunning:
		return false, nil
	default:
		return true, nil
	}
}

func (c *GRPCClient) UploadSST(ctx context.Context, region *importpb.Region, meta *importpb.SSTMeta, data io.Reader) error {
	rs, ok := data.(io.ReadSeeker)
	if !ok {
		buf, err := io.ReadAll(data)
		if err != nil {
			return errs.Wrap(err, "read segment for upload")
		}
		rs = bytes.NewReader(buf)
	}
	start, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return errs.Wrap(err, "locate segment upload offset")
	}
	for _, peer := range region.Peers {
		if _, err := rs.Seek(start, io.SeekStart); err != nil {
			return errs.Wrap(err, "rewind segment for upload")
		}
		if err := c.uploadToPeer(ctx, peer, meta, rs); err != nil {
			return err
		}
	}
	return nil
}

func (c *GRPCClient) uploadToPeer(ctx context.Context, peer *importpb.Peer, meta *importpb.SSTMeta, data io.Reader) error {
	conn, err := c.resolve(ctx, peer.StoreId)
	if err != nil {
		return err
	}

	stream, err := conn.NewStream(ctx, &grpc.StreamDesc{ClientStreams: true}, "/importpb.Import/Upload")
	if err != nil {
		c.postResolve(peer.StoreId, err)
		return errs.Wrap(err, "open upload stream")
	}
	if err := stream.SendMsg(&importpb.UploadRequest{Meta: meta}); err != nil {
		c.postResolve(peer.StoreId, err)
		return errs.Wrap(err, "send upload head frame")
	}

	buf := make([]byte, uploadChunkSize)
	for {
		n, readErr := data.Read(buf)
		if n > 0 {
			if err := c.limiter.WaitN(ctx, n); err != nil {
				return errs.Wrap(err, "upload rate limit")
			}
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if err := stream.SendMsg(&importpb.UploadRequest{Chunk: chunk}); err != nil {
				c.postResolve(peer.StoreId, err)
				return errs.Wrap(err, "send upload chunk")
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return errs.Wrap(readErr, "read segment for upload")
		}
	}
	return errs.Wrap(stream.CloseSend(), "close upload stream")
}

func (c *GRPCClient) IngestSST(ctx context.Context, region *importpb.Region, meta *importpb.SSTMeta) error {
	store := leaderStore(region)
	conn, err := c.resolve(ctx, store)
	if err != nil {
		return err
	}

	req := &importpb.IngestRequest{
		Context: &importpb.Context{
			RegionId:    region.Id,
			RegionEpoch: region.Epoch,
		},
		Sst: meta,
	}
	resp := new(importpb.IngestResponse)
	if err := conn.Invoke(ctx, "/importpb.Import/Ingest", req, resp); err != nil {
		c.postResolve(store, err)
		return errs.Wrap(err, "ingest sst")
	}
	return storeError(resp.Error)
}

func (c *GRPCClient) HasRegionID(ctx context.Context, regionID uint64) (bool, error) {
	resp, err := c.pd.GetOperator(ctx, regionID)
	if err != nil {
		return false, errs.Wrap(err, "has region id")
	}
	return resp.RegionId == regionID, nil
}

// IsSpaceEnough requires every peer store of region to have more than
// minAvailableRatio of its capacity free, matching client.rs's
// is_space_enough (available_ratio > min_available_ratio).
func (c *GRPCClient) IsSpaceEnough(ctx context.Context, region *importpb.Region, minAvailableRatio float64) (bool, error) {
	for _, peer := range region.Peers {
		stats, err := c.pd.GetStoreStats(ctx, peer.StoreId)
		if err != nil {
			return false, errs.Wrap(err, "get store stats")
		}
		if stats.Capacity == 0 {
			continue
		}
		ratio := float64(stats.Available) / float64(stats.Capacity)
		if ratio <= minAvailableRatio {
			return false, nil
		}
	}
	return true, nil
}

// resolve returns the cached channel for storeID, dialing and caching
// one on first use. Mirrors client.rs's Client::resolve.
func (c *GRPCClient) resolve(ctx context.Context, storeID uint64) (*grpc.ClientConn, error) {
	c.mu.Lock()
	conn, ok := c.channels[storeID]
	c.mu.Unlock()
	if ok {
		return conn, nil
	}

	addr, err := c.pd.GetStore(ctx, storeID)
	if err != nil {
		return nil, errs.Wrap(err, "resolve store address")
	}
	conn, err = grpc.DialContext(ctx, addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, errs.Wrap(err, "dial store")
	}

	c.mu.Lock()
	c.channels[storeID] = conn
	c.mu.Unlock()
	return conn, nil
}

// postResolve evicts storeID's cached channel when the RPC that used it
// failed, so the next resolve redials rather than reusing a connection
// to a peer that may have moved. Mirrors client.rs's Client::post_resolve.
func (c *GRPCClient) postResolve(storeID uint64, rpcErr error) {
	if rpcErr == nil {
		return
	}
	c.mu.Lock()
	if conn, ok := c.channels[storeID]; ok {
		delete(c.channels, storeID)
		_ = conn.Close()
	}
	c.mu.Unlock()
}

func leaderStore(region *importpb.Region) uint64 {
	if len(region.Peers) == 0 {
		return 0
	}
	return region.Peers[0].StoreId
}

// storeError converts an importpb.Error envelope into the typed
// errs.NotLeader / errs.EpochNotMatch the job package retries on, or a
// plain wrapped error for anything else.
func storeError(e *importpb.Error) error {
	if e == nil {
		return nil
	}
	switch {
	case e.NotLeader != nil:
		peer := uint64(0)
		if e.NotLeader.Leader != nil {
			peer = e.NotLeader.Leader.StoreId
		}
		return &errs.NotLeader{Peer: peer}
	case e.EpochNotMatch != nil:
		shapes := make([]errs.RegionShape, 0, len(e.EpochNotMatch.CurrentRegions))
		for _, r := range e.EpochNotMatch.CurrentRegions {
			shapes = append(shapes, errs.RegionShape{StartKey: r.StartKey, EndKey: r.EndKey})
		}
		return &errs.EpochNotMatch{CurrentRegions: shapes}
	default:
		return errors.New(e.Message)
	}
}
