package job

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tikv/importer/internal/client"
	"github.com/tikv/importer/internal/importpb"
	"github.com/tikv/importer/internal/logutil"
)

func regionFixture(id uint64, start, end []byte) *importpb.Region {
	return &importpb.Region{
		Id:       id,
		StartKey: start,
		EndKey:   end,
		Epoch:    &importpb.RegionEpoch{ConfVer: 1, Version: 1},
		Peers:    []*importpb.Peer{{Id: 1, StoreId: 1}},
	}
}

func TestRangeContextStopsOnSizeLimit(t *testing.T) {
	cli := client.NewMockClient([]*importpb.Region{regionFixture(1, nil, nil)})
	rc := NewRangeContext(cli, logutil.New(0), 100)

	rc.Reset(context.Background(), []byte("a"))
	rc.Add(50)
	assert.False(t, rc.ShouldStopBefore([]byte("b")))
	rc.Add(60)
	assert.True(t, rc.ShouldStopBefore([]byte("c")))
}

func TestRangeContextStopsOnRegionBoundary(t *testing.T) {
	regions := []*importpb.Region{
		regionFixture(1, []byte("a"), []byte("m")),
		regionFixture(2, []byte("m"), nil),
	}
	cli := client.NewMockClient(regions)
	rc := NewRangeContext(cli, logutil.New(0), 1<<30)

	rc.Reset(context.Background(), []byte("a"))
	require.NotNil(t, rc.Region())
	assert.True(t, rc.ShouldStopBefore([]byte("m")))
	assert.False(t, rc.ShouldStopBefore([]byte("b")))
}

func TestRangeContextReusesResolvedRegion(t *testing.T) {
	regions := []*importpb.Region{regionFixture(1, []byte("a"), []byte("z"))}
	cli := client.NewMockClient(regions)
	rc := NewRangeContext(cli, logutil.New(0), 1<<30)

	rc.Reset(context.Background(), []byte("b"))
	first := rc.Region()
	rc.Reset(context.Background(), []byte("c")) // still inside [a,z): no re-resolve needed
	assert.Same(t, first, rc.Region())
}
