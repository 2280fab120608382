// Package metrics exposes Boba's own Prometheus collectors: eval counts
// and latency, closures created, bytecode bytes written, plus the
// process-level goroutine/memory/GC gauges every long-running Boba
// process (the REPL, `boba run --watch`) carries regardless of whether
// anyone is scraping it.
package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics collectors for a Boba process.
type Metrics struct {
	evalTotal      *prometheus.CounterVec
	evalDuration   *prometheus.HistogramVec
	closuresTotal  prometheus.Counter
	bytecodeBytes  prometheus.Counter

	goroutines   prometheus.Gauge
	memoryAlloc  prometheus.Gauge
	memoryTotal  prometheus.Gauge
	memorySystem prometheus.Gauge
	numGC        prometheus.Gauge

	customCounters   map[string]*prometheus.CounterVec
	customGauges     map[string]*prometheus.GaugeVec
	customHistograms map[string]*prometheus.HistogramVec

	registry *prometheus.Registry
}

// Config holds configuration for metrics.
type Config struct {
	Namespace string
	// DurationBuckets for eval latency, in seconds.
	DurationBuckets []float64
}

// DefaultConfig returns a default configuration tuned for eval latencies,
// which run microseconds to low milliseconds rather than HTTP-scale
// hundreds of milliseconds.
func DefaultConfig() Config {
	return Config{
		Namespace:       "boba",
		DurationBuckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(config Config) *Metrics {
	if config.Namespace == "" {
		config = DefaultConfig()
	}
	if len(config.DurationBuckets) == 0 {
		config.DurationBuckets = DefaultConfig().DurationBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry:         registry,
		customCounters:   make(map[string]*prometheus.CounterVec),
		customGauges:     make(map[string]*prometheus.GaugeVec),
		customHistograms: make(map[string]*prometheus.HistogramVec),
	}

	m.evalTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "eval_total",
			Help:      "Total number of top-level expressions evaluated, by outcome",
		},
		[]string{"outcome"}, // "ok", "compile_error", "runtime_fault"
	)

	m.evalDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: config.Namespace,
			Name:      "eval_duration_seconds",
			Help:      "Wall-clock time to compile and execute one top-level expression",
			Buckets:   config.DurationBuckets,
		},
		[]string{"outcome"},
	)

	m.closuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "closures_created_total",
			Help:      "Total number of closures created by CreateClosure",
		},
	)

	m.bytecodeBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: config.Namespace,
			Name:      "bytecode_bytes_written_total",
			Help:      "Total bytecode bytes ever appended to the shared instruction buffer, including reclaimed throwaway expressions",
		},
	)

	m.goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "process",
			Name:      "goroutines",
			Help:      "Number of goroutines currently running",
		},
	)

	m.memoryAlloc = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "process",
			Name:      "memory_alloc_bytes",
			Help:      "Number of bytes allocated and still in use",
		},
	)

	m.memoryTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "process",
			Name:      "memory_total_alloc_bytes",
			Help:      "Total number of bytes allocated (cumulative)",
		},
	)

	m.memorySystem = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "process",
			Name:      "memory_sys_bytes",
			Help:      "Number of bytes obtained from the system",
		},
	)

	m.numGC = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: config.Namespace,
			Subsystem: "process",
			Name:      "gc_runs_total",
			Help:      "Total number of GC runs",
		},
	)

	registry.MustRegister(
		m.evalTotal,
		m.evalDuration,
		m.closuresTotal,
		m.bytecodeBytes,
		m.goroutines,
		m.memoryAlloc,
		m.memoryTotal,
		m.memorySystem,
		m.numGC,
	)

	go m.collectProcessMetrics()

	return m
}

func (m *Metrics) collectProcessMetrics() {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.UpdateProcessMetrics()
	}
}

// UpdateProcessMetrics refreshes the goroutine/memory/GC gauges.
func (m *Metrics) UpdateProcessMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memoryAlloc.Set(float64(memStats.Alloc))
	m.memoryTotal.Set(float64(memStats.TotalAlloc))
	m.memorySystem.Set(float64(memStats.Sys))
	m.numGC.Set(float64(memStats.NumGC))
}

// RecordEval records one top-level Eval's outcome and latency.
func (m *Metrics) RecordEval(outcome string, duration time.Duration) {
	m.evalTotal.WithLabelValues(outcome).Inc()
	m.evalDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// RecordClosureCreated increments the closures-created counter.
func (m *Metrics) RecordClosureCreated() {
	m.closuresTotal.Inc()
}

// RecordBytecodeWritten adds n to the bytecode-bytes-written counter.
func (m *Metrics) RecordBytecodeWritten(n int) {
	m.bytecodeBytes.Add(float64(n))
}

// RegisterCustomCounter registers a custom counter metric.
func (m *Metrics) RegisterCustomCounter(name, help string, labels []string) error {
	if _, exists := m.customCounters[name]; exists {
		return prometheus.AlreadyRegisteredError{}
	}

	counter := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: name, Help: help},
		labels,
	)

	if err := m.registry.Register(counter); err != nil {
		return err
	}

	m.customCounters[name] = counter
	return nil
}

// RegisterCustomGauge registers a custom gauge metric.
func (m *Metrics) RegisterCustomGauge(name, help string, labels []string) error {
	if _, exists := m.customGauges[name]; exists {
		return prometheus.AlreadyRegisteredError{}
	}

	gauge := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{Name: name, Help: help},
		labels,
	)

	if err := m.registry.Register(gauge); err != nil {
		return err
	}

	m.customGauges[name] = gauge
	return nil
}

// RegisterCustomHistogram registers a custom histogram metric.
func (m *Metrics) RegisterCustomHistogram(name, help string, labels []string, buckets []float64) error {
	if _, exists := m.customHistograms[name]; exists {
		return prometheus.AlreadyRegisteredError{}
	}

	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	histogram := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets},
		labels,
	)

	if err := m.registry.Register(histogram); err != nil {
		return err
	}

	m.customHistograms[name] = histogram
	return nil
}

// IncrementCustomCounter increments a custom counter.
func (m *Metrics) IncrementCustomCounter(name string, labels map[string]string) {
	if counter, exists := m.customCounters[name]; exists {
		counter.With(prometheus.Labels(labels)).Inc()
	}
}

// SetCustomGauge sets a custom gauge value.
func (m *Metrics) SetCustomGauge(name string, value float64, labels map[string]string) {
	if gauge, exists := m.customGauges[name]; exists {
		gauge.With(prometheus.Labels(labels)).Set(value)
	}
}

// ObserveCustomHistogram observes a value in a custom histogram.
func (m *Metrics) ObserveCustomHistogram(name string, value float64, labels map[string]string) {
	if histogram, exists := m.customHistograms[name]; exists {
		histogram.With(prometheus.Labels(labels)).Observe(value)
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// GetRegistry returns the Prometheus registry.
func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}
