package metrics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDumpRendersRegisteredMetrics(t *testing.T) {
	m := New()
	m.RequestsTotal.WithLabelValues("open_engine").Inc()
	m.BytesWritten.Add(42)

	text, err := m.Dump()
	require.NoError(t, err)
	assert.Contains(t, text, "tikv_importer_requests_total")
	assert.Contains(t, text, "tikv_importer_bytes_written_total")
	assert.True(t, strings.Contains(text, `op="open_engine"`))
}
