package core

import (
	"context"
	"errors"
	"net/http"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// health.go adapts the teacher's system_health_logging.go — a JSON file
// logger plus a private Prometheus registry sampled on an interval — from
// blockchain node health (block height, peer count, supply) to scheduler
// run health (current tick, queue depth, ledger size, memory budget use).

// RunHealth captures a point-in-time snapshot of a scheduler run.
type RunHealth struct {
	Tick          uint64 `json:"tick"`
	QueueLen      int    `json:"queue_len"`
	QueueCap      int    `json:"queue_cap"`
	LedgerRecords int    `json:"ledger_records"`
	MemoryUsed    uint64 `json:"memory_used"`
	MemoryPeak    uint64 `json:"memory_peak"`
	NumGoroutines int    `json:"goroutines"`
	Timestamp     int64  `json:"timestamp"`
}

// RunHealthLogger provides periodic structured logging and Prometheus
// gauges for a single scheduler run.
type RunHealthLogger struct {
	sched  *Scheduler
	ledger *Ledger
	budget *MemoryBudget

	log  *logrus.Logger
	file *os.File
	mu   sync.Mutex

	registry       *prometheus.Registry
	tickGauge      prometheus.Gauge
	queueLenGauge  prometheus.Gauge
	ledgerLenGauge prometheus.Gauge
	memUsedGauge   prometheus.Gauge
	goroutineGauge prometheus.Gauge
	errorCounter   prometheus.Counter
}

// NewRunHealthLogger configures a logger writing JSON lines to path and
// registers its own Prometheus registry (never the global default, so
// multiple runs in one process don't collide on metric names).
func NewRunHealthLogger(sched *Scheduler, ledger *Ledger, budget *MemoryBudget, path string) (*RunHealthLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	lg := logrus.New()
	lg.SetFormatter(&logrus.JSONFormatter{})
	lg.SetOutput(f)
	reg := prometheus.NewRegistry()

	h := &RunHealthLogger{sched: sched, ledger: ledger, budget: budget, log: lg, file: f, registry: reg}

	h.tickGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "z6sim_current_tick", Help: "Current scheduler tick."})
	h.queueLenGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "z6sim_queue_len", Help: "Current event queue depth."})
	h.ledgerLenGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "z6sim_ledger_records", Help: "Records held by the in-memory ledger."})
	h.memUsedGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "z6sim_memory_used_bytes", Help: "Bytes allocated against the run's memory budget."})
	h.goroutineGauge = prometheus.NewGauge(prometheus.GaugeOpts{Name: "z6sim_goroutines", Help: "Number of running goroutines."})
	h.errorCounter = prometheus.NewCounter(prometheus.CounterOpts{Name: "z6sim_log_errors_total", Help: "Total number of error events logged."})

	reg.MustRegister(h.tickGauge, h.queueLenGauge, h.ledgerLenGauge, h.memUsedGauge, h.goroutineGauge, h.errorCounter)
	return h, nil
}

// Close releases the underlying log file.
func (h *RunHealthLogger) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.file.Close()
}

// LogEvent records an arbitrary message with the specified log level.
func (h *RunHealthLogger) LogEvent(level logrus.Level, msg string) {
	h.mu.Lock()
	if level >= logrus.ErrorLevel {
		h.errorCounter.Inc()
	}
	h.log.Log(level, msg)
	h.mu.Unlock()
}

// Snapshot gathers a RunHealth reading from the scheduler, ledger, budget,
// and the Go runtime.
func (h *RunHealthLogger) Snapshot() RunHealth {
	rh := RunHealth{Timestamp: time.Now().Unix(), NumGoroutines: runtime.NumGoroutine()}
	if h.sched != nil {
		rh.Tick = h.sched.Tick()
		rh.QueueLen = h.sched.queue.Len()
		rh.QueueCap = h.sched.queue.Cap()
	}
	if h.ledger != nil {
		rh.LedgerRecords = h.ledger.Len()
	}
	if h.budget != nil {
		rh.MemoryUsed = h.budget.Used()
		rh.MemoryPeak = h.budget.Peak()
	}
	return rh
}

// Record captures the current snapshot, updates the Prometheus gauges, and
// logs it at info level.
func (h *RunHealthLogger) Record() {
	rh := h.Snapshot()
	h.tickGauge.Set(float64(rh.Tick))
	h.queueLenGauge.Set(float64(rh.QueueLen))
	h.ledgerLenGauge.Set(float64(rh.LedgerRecords))
	h.memUsedGauge.Set(float64(rh.MemoryUsed))
	h.goroutineGauge.Set(float64(rh.NumGoroutines))
	h.mu.Lock()
	h.log.WithFields(logrus.Fields{
		"tick":           rh.Tick,
		"queue_len":      rh.QueueLen,
		"queue_cap":      rh.QueueCap,
		"ledger_records": rh.LedgerRecords,
		"memory_used":    rh.MemoryUsed,
		"memory_peak":    rh.MemoryPeak,
		"goroutines":     rh.NumGoroutines,
	}).Info("health snapshot recorded")
	h.mu.Unlock()
}

// RunCollector periodically calls Record until ctx is cancelled.
func (h *RunHealthLogger) RunCollector(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.Record()
		case <-ctx.Done():
			return
		}
	}
}

// StartMetricsServer exposes this logger's private Prometheus registry on
// addr. It returns the underlying http.Server so callers manage its
// lifecycle.
func (h *RunHealthLogger) StartMetricsServer(addr string) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.LogEvent(logrus.ErrorLevel, err.Error())
		}
	}()
	return srv, nil
}

// ShutdownMetricsServer gracefully stops the metrics HTTP server.
func (h *RunHealthLogger) ShutdownMetricsServer(ctx context.Context, srv *http.Server) error {
	return srv.Shutdown(ctx)
}
