// Package importpb holds the plain Go message shapes exchanged with PD
// and the store RPC service. PD and the stores are external
// collaborators (spec §1): only the semantics of these calls are in
// scope for this module, not their wire format, so these types are
// hand-modeled rather than generated from a .proto file. They still
// implement proto.Message so they can ride over a real gRPC
// ClientConn via google.golang.org/grpc's generic Invoke/NewStream.
package importpb

import "github.com/gogo/protobuf/proto"

// Peer identifies one replica of a Region.
type Peer struct {
	Id      uint64
	StoreId uint64
}

func (*Peer) Reset()         {}
func (p *Peer) String() string { return proto.CompactTextString(p) }
func (*Peer) ProtoMessage()  {}

// RegionEpoch versions a Region; it advances on every split, merge, or
// conf change. Store RPCs that observe a stale epoch return
// EpochNotMatch so the caller re-resolves.
type RegionEpoch struct {
	ConfVer uint64
	Version uint64
}

func (*RegionEpoch) Reset()         {}
func (e *RegionEpoch) String() string { return proto.CompactTextString(e) }
func (*RegionEpoch) ProtoMessage()  {}

// Region is PD's view of one key-range shard of the target cluster.
type Region struct {
	Id       uint64
	StartKey []byte
	EndKey   []byte
	Epoch    *RegionEpoch
	Peers    []*Peer
}

func (*Region) Reset()         {}
func (r *Region) String() string { return proto.CompactTextString(r) }
func (*Region) ProtoMessage()  {}

// RegionInfo pairs a Region with the peer currently believed to lead it.
type RegionInfo struct {
	Region *Region
	Leader *Peer
}

func (*RegionInfo) Reset()         {}
func (r *RegionInfo) String() string { return proto.CompactTextString(r) }
func (*RegionInfo) ProtoMessage()  {}

// StoreStats carries the disk-capacity figures used by the
// is_space_enough check before a segment upload begins.
type StoreStats struct {
	StoreId   uint64
	Capacity  uint64
	Available uint64
}

func (*StoreStats) Reset()         {}
func (s *StoreStats) String() string { return proto.CompactTextString(s) }
func (*StoreStats) ProtoMessage()  {}

// SSTMeta describes one segment file as staged for ingest: its target
// range, the column family it belongs to, and a CRC32/length pair for
// integrity checking on the receiving store.
type SSTMeta struct {
	Uuid     []byte
	RegionId uint64
	Epoch    *RegionEpoch
	CfName   string // "default" or "write"
	RangeMin []byte
	RangeMax []byte
	Crc32    uint32
	Length   uint64
}

func (*SSTMeta) Reset()         {}
func (m *SSTMeta) String() string { return proto.CompactTextString(m) }
func (*SSTMeta) ProtoMessage()  {}

// UploadRequest is the client->store stream for one segment: a single
// head frame carrying Meta, followed by any number of Chunk frames.
type UploadRequest struct {
	Meta  *SSTMeta
	Chunk []byte
}

func (*UploadRequest) Reset()         {}
func (u *UploadRequest) String() string { return proto.CompactTextString(u) }
func (*UploadRequest) ProtoMessage()  {}

// UploadResponse is empty; success is the absence of a stream error.
type UploadResponse struct{}

func (*UploadResponse) Reset()         {}
func (r *UploadResponse) String() string { return proto.CompactTextString(r) }
func (*UploadResponse) ProtoMessage()  {}

// IngestRequest asks the leader of Meta's region to atomically link the
// already-uploaded segment file into its LSM tree.
type IngestRequest struct {
	Context *Context
	Sst     *SSTMeta
}

func (*IngestRequest) Reset()         {}
func (r *IngestRequest) String() string { return proto.CompactTextString(r) }
func (*IngestRequest) ProtoMessage()  {}

// IngestResponse carries an errorpb-shaped Error when ingest could not
// proceed (NotLeader, EpochNotMatch, or a generic store error).
type IngestResponse struct {
	Error *Error
}

func (*IngestResponse) Reset()         {}
func (r *IngestResponse) String() string { return proto.CompactTextString(r) }
func (*IngestResponse) ProtoMessage()  {}

// Context carries the caller's last-known region/peer/epoch for a
// single-region RPC, mirroring kvrpcpb.Context's role in the original.
type Context struct {
	RegionId    uint64
	RegionEpoch *RegionEpoch
	Peer        *Peer
}

func (*Context) Reset()         {}
func (c *Context) String() string { return proto.CompactTextString(c) }
func (*Context) ProtoMessage()  {}

// Error is the store-side error envelope. Exactly one of NotLeader /
// EpochNotMatch / Message is populated.
type Error struct {
	Message       string
	NotLeader     *NotLeaderError
	EpochNotMatch *EpochNotMatchError
}

func (*Error) Reset()         {}
func (e *Error) String() string { return proto.CompactTextString(e) }
func (*Error) ProtoMessage()  {}

// NotLeaderError names the peer the store believes now leads the
// region, when known.
type NotLeaderError struct {
	RegionId uint64
	Leader   *Peer // nil if unknown
}

func (*NotLeaderError) Reset()         {}
func (e *NotLeaderError) String() string { return proto.CompactTextString(e) }
func (*NotLeaderError) ProtoMessage()  {}

// EpochNotMatchError carries PD's current view of the region(s) that
// now cover the range the caller thought was a single region.
type EpochNotMatchError struct {
	CurrentRegions []*Region
}

func (*EpochNotMatchError) Reset()         {}
func (e *EpochNotMatchError) String() string { return proto.CompactTextString(e) }
func (*EpochNotMatchError) ProtoMessage()  {}

// SplitRegionRequest asks PD/the region leader to split Region at each
// of SplitKeys, in order.
type SplitRegionRequest struct {
	Context   *Context
	SplitKeys [][]byte
}

func (*SplitRegionRequest) Reset()         {}
func (r *SplitRegionRequest) String() string { return proto.CompactTextString(r) }
func (*SplitRegionRequest) ProtoMessage()  {}

// SplitRegionResponse returns the regions resulting from the split, in
// key order.
type SplitRegionResponse struct {
	Regions []*Region
	Error   *Error
}

func (*SplitRegionResponse) Reset()         {}
func (r *SplitRegionResponse) String() string { return proto.CompactTextString(r) }
func (*SplitRegionResponse) ProtoMessage()  {}

// ScatterRegionRequest asks PD to begin rebalancing Region's replicas
// across the cluster.
type ScatterRegionRequest struct {
	RegionId uint64
}

func (*ScatterRegionRequest) Reset()         {}
func (r *ScatterRegionRequest) String() string { return proto.CompactTextString(r) }
func (*ScatterRegionRequest) ProtoMessage()  {}

// ScatterRegionResponse is empty; scatter is asynchronous and polled
// via GetOperatorResponse.
type ScatterRegionResponse struct{}

func (*ScatterRegionResponse) Reset()         {}
func (r *ScatterRegionResponse) String() string { return proto.CompactTextString(r) }
func (*ScatterRegionResponse) ProtoMessage()  {}

// GetOperatorResponse reports whether PD still has a pending scheduler
// operator (e.g. an in-flight scatter) for a region.
type GetOperatorResponse struct {
	RegionId uint64
	Status   OperatorStatus
}

func (*GetOperatorResponse) Reset()         {}
func (r *GetOperatorResponse) String() string { return proto.CompactTextString(r) }
func (*GetOperatorResponse) ProtoMessage()  {}

// Mode is the cluster-wide mode SwitchMode toggles stores between:
// Import mode relaxes compaction pressure and flush thresholds while
// a bulk load is in flight, Normal mode restores standard behavior.
type Mode int32

const (
	ModeNormal Mode = 0
	ModeImport Mode = 1
)

// OperatorStatus enumerates PD's operator lifecycle states.
type OperatorStatus int32

const (
	OperatorStatusUnknown  OperatorStatus = 0
	OperatorStatusRunning  OperatorStatus = 1
	OperatorStatusSuccess  OperatorStatus = 2
	OperatorStatusTimeout  OperatorStatus = 3
	OperatorStatusCanceled OperatorStatus = 4
	OperatorStatusReplaced OperatorStatus = 5
)
