package job

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tikv/importer/internal/client"
	"github.com/tikv/importer/internal/engine"
	"github.com/tikv/importer/internal/importpb"
	"github.com/tikv/importer/internal/logutil"
)

func TestPrepareJobSplitsAndScatters(t *testing.T) {
	region := regionFixture(1, nil, nil)
	cli := client.NewMockClient([]*importpb.Region{region})

	pj := NewPrepareJob(cli, logutil.New(0), time.Second)
	ranges := []engine.ApproximateRange{
		{Start: nil, End: []byte("m")},
		{Start: []byte("m"), End: nil},
	}
	require.NoError(t, pj.Run(context.Background(), ranges))
}

func TestPrepareJobNoopOnSingleRange(t *testing.T) {
	region := regionFixture(1, nil, nil)
	cli := client.NewMockClient([]*importpb.Region{region})

	pj := NewPrepareJob(cli, logutil.New(0), time.Second)
	ranges := []engine.ApproximateRange{{Start: nil, End: nil}}
	require.NoError(t, pj.Run(context.Background(), ranges))
}
