package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bundlr"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	reg           *prom.Registry
	stateDuration *prom.HistogramVec
	buildDuration *prom.HistogramVec
	buildOutcome  *prom.CounterVec
	transforms    *prom.CounterVec
	modules       prom.Gauge
	chunks        prom.Gauge
	emittedBytes  prom.Counter
	clients       prom.Gauge
	broadcasts    *prom.CounterVec
}

// NewPrometheusRecorder constructs the metrics and registers them on reg,
// or on a fresh registry when reg is nil.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{reg: reg}
	pr.stateDuration = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "state_duration_seconds",
		Help:      "Time spent in each build state",
		Buckets:   prom.DefBuckets,
	}, []string{"state"})
	pr.buildDuration = prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "build_duration_seconds",
		Help:      "Total build duration",
		Buckets:   prom.DefBuckets,
	}, []string{"kind"})
	pr.buildOutcome = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "build_outcomes_total",
		Help:      "Build outcomes by final status",
	}, []string{"outcome"})
	pr.transforms = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "transforms_total",
		Help:      "Module transforms by content store result",
	}, []string{"cache"})
	pr.modules = prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "graph_modules",
		Help:      "Modules in the latest graph",
	})
	pr.chunks = prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "chunks",
		Help:      "Chunks in the latest build",
	})
	pr.emittedBytes = prom.NewCounter(prom.CounterOpts{
		Namespace: namespace,
		Name:      "emitted_bytes_total",
		Help:      "Bytes written to the output directory",
	})
	pr.clients = prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "websocket_clients",
		Help:      "Connected live-reload clients",
	})
	pr.broadcasts = prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "broadcasts_total",
		Help:      "Messages broadcast to live-reload clients by type",
	}, []string{"type"})
	reg.MustRegister(pr.stateDuration, pr.buildDuration, pr.buildOutcome, pr.transforms,
		pr.modules, pr.chunks, pr.emittedBytes, pr.clients, pr.broadcasts)
	return pr
}

// Registry returns the registry the metrics are registered on.
func (p *PrometheusRecorder) Registry() *prom.Registry {
	return p.reg
}

// Handler serves the recorder's registry in the Prometheus text format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (p *PrometheusRecorder) ObserveStateDuration(state string, d time.Duration) {
	p.stateDuration.WithLabelValues(state).Observe(d.Seconds())
}

func (p *PrometheusRecorder) ObserveBuildDuration(incremental bool, d time.Duration) {
	kind := "full"
	if incremental {
		kind = "incremental"
	}
	p.buildDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncBuildOutcome(outcome Outcome) {
	p.buildOutcome.WithLabelValues(string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncTransform(cacheHit bool) {
	label := "miss"
	if cacheHit {
		label = "hit"
	}
	p.transforms.WithLabelValues(label).Inc()
}

func (p *PrometheusRecorder) SetModules(n int) { p.modules.Set(float64(n)) }
func (p *PrometheusRecorder) SetChunks(n int)  { p.chunks.Set(float64(n)) }

func (p *PrometheusRecorder) AddEmittedBytes(n int64) {
	if n > 0 {
		p.emittedBytes.Add(float64(n))
	}
}

func (p *PrometheusRecorder) SetClients(n int) { p.clients.Set(float64(n)) }

func (p *PrometheusRecorder) IncBroadcast(kind string) {
	p.broadcasts.WithLabelValues(kind).Inc()
}
