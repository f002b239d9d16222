package metrics

import (
	"sort"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusProvider implements Provider backed by a Prometheus registry,
// lazily registering one Vec per metric name the first time it's used and
// reusing it thereafter, grounded on the teacher's
// telemetry/metrics/prometheus.go (same lazy-register-or-reuse shape,
// simplified to this package's label-map-based Provider contract).
type PrometheusProvider struct {
	reg *prom.Registry

	mu         sync.Mutex
	counters   map[string]*prom.CounterVec
	gauges     map[string]*prom.GaugeVec
	histograms map[string]*prom.HistogramVec
}

// NewPrometheusProvider builds a provider against reg, or a fresh
// registry if reg is nil.
func NewPrometheusProvider(reg *prom.Registry) *PrometheusProvider {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	return &PrometheusProvider{
		reg:        reg,
		counters:   make(map[string]*prom.CounterVec),
		gauges:     make(map[string]*prom.GaugeVec),
		histograms: make(map[string]*prom.HistogramVec),
	}
}

// Registry exposes the underlying registry so callers can mount
// promhttp.HandlerFor themselves (HTTP exposure is out of scope here).
func (p *PrometheusProvider) Registry() *prom.Registry { return p.reg }

func labelNames(labels map[string]string) ([]string, []string) {
	names := make([]string, 0, len(labels))
	for k := range labels {
		names = append(names, k)
	}
	sort.Strings(names)
	values := make([]string, len(names))
	for i, n := range names {
		values[i] = labels[n]
	}
	return names, values
}

func (p *PrometheusProvider) Counter(name string, labels map[string]string) Counter {
	names, values := labelNames(labels)
	p.mu.Lock()
	vec, ok := p.counters[name]
	if !ok {
		vec = prom.NewCounterVec(prom.CounterOpts{Name: name, Help: name}, names)
		if err := p.reg.Register(vec); err != nil {
			if are, ok := err.(prom.AlreadyRegisteredError); ok {
				vec = are.ExistingCollector.(*prom.CounterVec)
			}
		}
		p.counters[name] = vec
	}
	p.mu.Unlock()
	return promCounter{c: vec.WithLabelValues(values...)}
}

func (p *PrometheusProvider) Gauge(name string, labels map[string]string) Gauge {
	names, values := labelNames(labels)
	p.mu.Lock()
	vec, ok := p.gauges[name]
	if !ok {
		vec = prom.NewGaugeVec(prom.GaugeOpts{Name: name, Help: name}, names)
		if err := p.reg.Register(vec); err != nil {
			if are, ok := err.(prom.AlreadyRegisteredError); ok {
				vec = are.ExistingCollector.(*prom.GaugeVec)
			}
		}
		p.gauges[name] = vec
	}
	p.mu.Unlock()
	return promGauge{g: vec.WithLabelValues(values...)}
}

func (p *PrometheusProvider) Histogram(name string, labels map[string]string) Histogram {
	names, values := labelNames(labels)
	p.mu.Lock()
	vec, ok := p.histograms[name]
	if !ok {
		vec = prom.NewHistogramVec(prom.HistogramOpts{Name: name, Help: name, Buckets: prom.DefBuckets}, names)
		if err := p.reg.Register(vec); err != nil {
			if are, ok := err.(prom.AlreadyRegisteredError); ok {
				vec = are.ExistingCollector.(*prom.HistogramVec)
			}
		}
		p.histograms[name] = vec
	}
	p.mu.Unlock()
	return promHistogram{h: vec.WithLabelValues(values...)}
}

func (p *PrometheusProvider) Timer(name string, labels map[string]string) Timer {
	return promTimer{hist: p.Histogram(name, labels)}
}

type promCounter struct{ c prom.Counter }

func (c promCounter) Inc()              { c.c.Inc() }
func (c promCounter) Add(delta float64) { c.c.Add(delta) }

type promGauge struct{ g prom.Gauge }

func (g promGauge) Set(v float64) { g.g.Set(v) }

type promHistogram struct{ h prom.Observer }

func (h promHistogram) Observe(v float64) { h.h.Observe(v) }

type promTimer struct{ hist Histogram }

func (t promTimer) ObserveDuration(d time.Duration) { t.hist.Observe(d.Seconds()) }
