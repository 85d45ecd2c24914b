package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	SweeperSkipLockHeld = "lock_held"
	SweeperSkipLockErr  = "lock_error"

	SweeperErrorTimeout = "timeout"
	SweeperErrorOther   = "error"
)

// SweeperMetrics captures health of the expired reservation sweep.
type SweeperMetrics struct {
	runs     prometheus.Counter
	duration prometheus.Histogram
	released prometheus.Counter
	skipped  *prometheus.CounterVec
	errors   *prometheus.CounterVec
}

func NewSweeperMetrics(registerer prometheus.Registerer, cfg Config) *SweeperMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := constLabels(cfg)

	runs := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "sponsorship_sweeper_runs_total",
		Help:        "Sweeper runs that acquired the leader lock.",
		ConstLabels: labels,
	})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "sponsorship_sweeper_run_duration_seconds",
		Help:        "Sweeper run latency.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		ConstLabels: labels,
	})
	released := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "sponsorship_sweeper_released_total",
		Help:        "Expired reservations released by the sweeper.",
		ConstLabels: labels,
	})
	skipped := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "sponsorship_sweeper_skipped_total",
		Help:        "Sweeper ticks skipped by reason.",
		ConstLabels: labels,
	}, []string{"reason"})
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "sponsorship_sweeper_errors_total",
		Help:        "Sweeper failures by reason.",
		ConstLabels: labels,
	}, []string{"reason"})

	registerer.MustRegister(runs, duration, released, skipped, errs)
	return &SweeperMetrics{runs: runs, duration: duration, released: released, skipped: skipped, errors: errs}
}

func (m *SweeperMetrics) ObserveRun(elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.Inc()
	m.duration.Observe(elapsed.Seconds())
}

func (m *SweeperMetrics) AddReleased(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.released.Add(float64(count))
}

func (m *SweeperMetrics) IncSkipped(reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(reason).Inc()
}

func (m *SweeperMetrics) IncError(err error) {
	if m == nil || err == nil {
		return
	}
	reason := SweeperErrorOther
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		reason = SweeperErrorTimeout
	}
	m.errors.WithLabelValues(reason).Inc()
}
