package client

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/tikv/importer/internal/errs"
	"github.com/tikv/importer/internal/importpb"
)

// MockClient is an in-memory ImportClient used by this module's own
// tests, modeled on client.rs's test-only Client wiring: regions live
// in a plain sorted slice, uploads land in a byte-keyed map, and every
// knob a test needs to force (NotLeader once, a mid-test split, a
// disk-full store) is a public field or method rather than a mock
// framework.
type MockClient struct {
	mu sync.Mutex

	regions   []*importpb.Region
	uploaded  map[string][]byte // sst uuid (as string) -> bytes received
	ingested  map[string]*importpb.Region
	scatterDone map[uint64]bool

	// FailNotLeaderOnce, if set, makes the next IngestSST for this
	// region id fail with NotLeader, then clears itself; it lets tests
	// exercise SSTImporter's retry-on-NotLeader path deterministically.
	FailNotLeaderOnce map[uint64]bool

	// StoreAvailableRatio overrides IsSpaceEnough's result per store id;
	// stores absent from the map are treated as having plenty of room.
	StoreAvailableRatio map[uint64]float64
}

// NewMockClient builds a MockClient seeded with the given regions,
// which must be sorted and non-overlapping.
func NewMockClient(regions []*importpb.Region) *MockClient {
	return &MockClient{
		regions:             regions,
		uploaded:            make(map[string][]byte),
		ingested:            make(map[string]*importpb.Region),
		scatterDone:         make(map[uint64]bool),
		FailNotLeaderOnce:   make(map[uint64]bool),
		StoreAvailableRatio: make(map[uint64]float64),
	}
}

func (m *MockClient) GetRegion(_ context.Context, key []byte) (*importpb.RegionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.regions {
		if withinRange(key, r.StartKey, r.EndKey) {
			var leader *importpb.Peer
			if len(r.Peers) > 0 {
				leader = r.Peers[0]
			}
			return &importpb.RegionInfo{Region: r, Leader: leader}, nil
		}
	}
	return nil, errs.Wrap(errNotFound, "get region")
}

func (m *MockClient) SplitRegion(_ context.Context, region *importpb.Region, splitKey []byte) ([]*importpb.Region, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	idx := m.indexOf(region.Id)
	if idx < 0 {
		return nil, errs.Wrap(errNotFound, "split region")
	}

	bounds := [][]byte{region.StartKey, splitKey, region.EndKey}

	newRegions := make([]*importpb.Region, 0, len(bounds)-1)
	for i := 0; i < len(bounds)-1; i++ {
		nr := &importpb.Region{
			Id:       nextRegionID(),
			StartKey: bounds[i],
			EndKey:   bounds[i+1],
			Epoch:    &importpb.RegionEpoch{ConfVer: region.Epoch.ConfVer, Version: region.Epoch.Version + 1},
			Peers:    region.Peers,
		}
		newRegions = append(newRegions, nr)
	}

	m.regions = append(m.regions[:idx], append(newRegions, m.regions[idx+1:]...)...)
	return newRegions, nil
}

func (m *MockClient) ScatterRegion(_ context.Context, regionID uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scatterDone[regionID] = true
	return nil
}

func (m *MockClient) IsScatterRegionFinished(_ context.Context, regionID uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexOf(regionID) < 0 {
		return true, nil // vanished region: treat as finished, per client.rs
	}
	return m.scatterDone[regionID], nil
}

func (m *MockClient) UploadSST(_ context.Context, region *importpb.Region, meta *importpb.SSTMeta, data io.Reader) error {
	buf, err := io.ReadAll(data)
	if err != nil {
		return errs.Wrap(err, "read segment for upload")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploaded[string(meta.Uuid)] = buf
	return nil
}

func (m *MockClient) IngestSST(_ context.Context, region *importpb.Region, meta *importpb.SSTMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailNotLeaderOnce[region.Id] {
		m.FailNotLeaderOnce[region.Id] = false
		return &errs.NotLeader{Peer: leaderStore(region)}
	}
	if m.indexOf(region.Id) < 0 {
		return &errs.EpochNotMatch{CurrentRegions: m.shapesOverlapping(meta.RangeMin, meta.RangeMax)}
	}
	m.ingested[string(meta.Uuid)] = region
	return nil
}

func (m *MockClient) HasRegionID(_ context.Context, regionID uint64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indexOf(regionID) >= 0, nil
}

func (m *MockClient) IsSpaceEnough(_ context.Context, region *importpb.Region, minAvailableRatio float64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, peer := range region.Peers {
		if ratio, ok := m.StoreAvailableRatio[peer.StoreId]; ok && ratio <= minAvailableRatio {
			return false, nil
		}
	}
	return true, nil
}

// Uploaded returns the bytes received for an SST uuid, for test
// assertions.
func (m *MockClient) Uploaded(uuid []byte) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.uploaded[string(uuid)]
	return b, ok
}

// Ingested reports whether an SST uuid was successfully ingested.
func (m *MockClient) Ingested(uuid []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.ingested[string(uuid)]
	return ok
}

// IngestedRegionIDs returns the set of region ids that received a
// successful ingest, for tests that don't control the ingested SST's
// generated uuid (e.g. across a re-split, where sub-segments get fresh
// uuids internally).
func (m *MockClient) IngestedRegionIDs() map[uint64]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make(map[uint64]bool, len(m.ingested))
	for _, r := range m.ingested {
		ids[r.Id] = true
	}
	return ids
}

func (m *MockClient) indexOf(regionID uint64) int {
	for i, r := range m.regions {
		if r.Id == regionID {
			return i
		}
	}
	return -1
}

func (m *MockClient) shapesOverlapping(start, end []byte) []errs.RegionShape {
	var out []errs.RegionShape
	for _, r := range m.regions {
		if rangesOverlap(start, end, r.StartKey, r.EndKey) {
			out = append(out, errs.RegionShape{StartKey: r.StartKey, EndKey: r.EndKey})
		}
	}
	return out
}

func withinRange(key, start, end []byte) bool {
	if bytes.Compare(key, start) < 0 {
		return false
	}
	return len(end) == 0 || bytes.Compare(key, end) < 0
}

func rangesOverlap(aStart, aEnd, bStart, bEnd []byte) bool {
	if len(aEnd) != 0 && bytes.Compare(bStart, aEnd) >= 0 {
		return false
	}
	if len(bEnd) != 0 && bytes.Compare(aStart, bEnd) >= 0 {
		return false
	}
	return true
}

var nextID uint64 = 1000

func nextRegionID() uint64 {
	nextID++
	return nextID
}

var errNotFound = errNotFoundErr("region not found")

type errNotFoundErr string

func (e errNotFoundErr) Error() string { return string(e) }
