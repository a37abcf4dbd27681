// Package metrics defines the Prometheus collectors ClientFacade
// reports to, and Dump, which renders them as
// exposition text for GetMetrics. Grounded on
// other_examples/.../tidb-lightning backend.go's
// metric.ImporterEngineCounter usage and kwbase/pkg/ts's Prometheus
// registration style.
package metrics

import (
	"bytes"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// Metrics holds every collector this service exposes. ClientFacade
// updates RequestsTotal, BytesWritten and ImportFailuresTotal; the job
// package takes no Metrics, and nothing in this module updates
// SegmentsIngested, SegmentRetriesTotal, ImportDuration or OpenEngines.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal       *prometheus.CounterVec
	BytesWritten        prometheus.Counter
	SegmentsIngested     prometheus.Counter
	SegmentRetriesTotal  *prometheus.CounterVec
	ImportFailuresTotal prometheus.Counter
	ImportDuration      prometheus.Histogram
	OpenEngines         prometheus.Gauge
}

// New registers and returns a fresh Metrics instance. Each call
// produces its own prometheus.Registry so package-level tests can
// construct independent instances without colliding on the default
// global registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tikv_importer",
			Name:      "requests_total",
			Help:      "Total ClientFacade requests, by operation.",
		}, []string{"op"}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tikv_importer",
			Name:      "bytes_written_total",
			Help:      "Total bytes staged into engines via WriteEngine/WriteEngineV3.",
		}),
		SegmentsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tikv_importer",
			Name:      "segments_ingested_total",
			Help:      "Total segment files successfully ingested into the target cluster.",
		}),
		SegmentRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tikv_importer",
			Name:      "segment_retries_total",
			Help:      "Total segment import retries, by cause (not_leader, epoch_not_match).",
		}, []string{"cause"}),
		ImportFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tikv_importer",
			Name:      "import_failures_total",
			Help:      "Total ImportEngine calls that did not complete successfully.",
		}),
		ImportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tikv_importer",
			Name:      "import_duration_seconds",
			Help:      "Wall-clock duration of a complete ImportEngine call.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		OpenEngines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tikv_importer",
			Name:      "open_engines",
			Help:      "Number of engines currently holding a max_open_engines slot.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.BytesWritten,
		m.SegmentsIngested,
		m.SegmentRetriesTotal,
		m.ImportFailuresTotal,
		m.ImportDuration,
		m.OpenEngines,
	)
	return m
}

// Dump renders every registered metric as Prometheus exposition text,
// backing ClientFacade.GetMetrics.
func (m *Metrics) Dump() (string, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range families {
		if err := enc.Encode(family); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// Handler returns an http.Handler serving this registry's metrics in
// the standard /metrics exposition format. cmd/tikv-importer does not
// mount it.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
