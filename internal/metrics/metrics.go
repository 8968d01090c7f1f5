package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
)

const subsystem = "battlestats"

// latency buckets in milliseconds, upstream calls and refresh jobs
var HistogramBuckets = []float64{
	25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 120000, 300000, 600000,
}

// Metric describes one collector: its name, help text, kind and label names.
type Metric struct {
	ID          string
	Name        string
	Description string
	Type        string
	Args        []string
}

// NewMetric builds the prometheus.Collector matching m.Type.
func NewMetric(m *Metric) prometheus.Collector {
	var metric prometheus.Collector
	switch m.Type {
	case "counter_vec":
		metric = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
			m.Args,
		)
	case "gauge":
		metric = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
			},
		)
	case "histogram_vec":
		metric = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Subsystem: subsystem,
				Name:      m.Name,
				Help:      m.Description,
				Buckets:   HistogramBuckets,
			},
			m.Args,
		)
	}
	return metric
}

var upstreamRequests = &Metric{
	ID:          "upstreamReq",
	Name:        "upstream_requests_total",
	Description: "Requests sent to the stats API, partitioned by endpoint and result.",
	Type:        "counter_vec",
	Args:        []string{"endpoint", "result"},
}

var upstreamDuration = &Metric{
	ID:          "upstreamDur",
	Name:        "upstream_request_dur_ms",
	Description: "Stats API request latencies in milliseconds.",
	Type:        "histogram_vec",
	Args:        []string{"endpoint"},
}

var viewLookups = &Metric{
	ID:          "viewLookups",
	Name:        "view_lookups_total",
	Description: "Cached view reads, partitioned by view and cache state.",
	Type:        "counter_vec",
	Args:        []string{"view", "state"},
}

var refreshJobs = &Metric{
	ID:          "refreshJobs",
	Name:        "refresh_jobs_total",
	Description: "Background refresh jobs, partitioned by job and result.",
	Type:        "counter_vec",
	Args:        []string{"job", "result"},
}

var refreshDuration = &Metric{
	ID:          "refreshDur",
	Name:        "refresh_job_dur_ms",
	Description: "Background refresh job durations in milliseconds.",
	Type:        "histogram_vec",
	Args:        []string{"job"},
}

var queueDepth = &Metric{
	ID:          "queueDepth",
	Name:        "refresh_queue_depth",
	Description: "Refresh jobs waiting for a worker.",
	Type:        "gauge",
}

type Metrics struct {
	Registry *prometheus.Registry

	UpstreamRequests *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	ViewLookups      *prometheus.CounterVec
	RefreshJobs      *prometheus.CounterVec
	RefreshDuration  *prometheus.HistogramVec
	QueueDepth       prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		Registry:         reg,
		UpstreamRequests: NewMetric(upstreamRequests).(*prometheus.CounterVec),
		UpstreamDuration: NewMetric(upstreamDuration).(*prometheus.HistogramVec),
		ViewLookups:      NewMetric(viewLookups).(*prometheus.CounterVec),
		RefreshJobs:      NewMetric(refreshJobs).(*prometheus.CounterVec),
		RefreshDuration:  NewMetric(refreshDuration).(*prometheus.HistogramVec),
		QueueDepth:       NewMetric(queueDepth).(prometheus.Gauge),
	}
	reg.MustRegister(
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.ViewLookups,
		m.RefreshJobs,
		m.RefreshDuration,
		m.QueueDepth,
	)
	return m
}

var Module = fx.Provide(New)
