package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/aqsharvest/internal/progress"
)

// PrometheusSink exports sweep progress via Prometheus. It owns collectors for
// runs started/completed/running, sweep completion ratio and per-profile fetch counters.
type PrometheusSink struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runRuntime    *prometheus.HistogramVec
	sweepPlanned  *prometheus.GaugeVec
	sweepDone     *prometheus.GaugeVec

	fetches       *prometheus.CounterVec
	fetchRows     *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aqsharvest_runs_started_total",
			Help: "Total runs that have started.",
		}, []string{"profile"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aqsharvest_runs_completed_total",
			Help: "Total runs completed partitioned by result.",
		}, []string{"profile", "result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "aqsharvest_runs_running",
			Help: "Current number of running sweeps.",
		}),
		runRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aqsharvest_run_runtime_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{10, 60, 300, 900, 1800, 3600, 7200, 14400, 28800},
		}, []string{"profile", "result"}),
		sweepPlanned: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aqsharvest_sweep_planned_requests",
			Help: "Planned dailyData requests for the current run.",
		}, []string{"profile"}),
		sweepDone: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aqsharvest_sweep_completed_requests",
			Help: "Completed dailyData requests for the current run.",
		}, []string{"profile"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aqsharvest_sweep_fetches_total",
			Help: "Fetch completions partitioned by profile and outcome.",
		}, []string{"profile", "outcome"}),
		fetchRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aqsharvest_sweep_rows_total",
			Help: "Rows downloaded per profile.",
		}, []string{"profile"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aqsharvest_sweep_fetch_duration_seconds",
			Help:    "Fetch duration partitioned by profile and outcome.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}, []string{"profile", "outcome"}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runRuntime,
		s.sweepPlanned,
		s.sweepDone,
		s.fetches,
		s.fetchRows,
		s.fetchDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.WithLabelValues(evt.Profile).Inc()
			s.sweepPlanned.WithLabelValues(evt.Profile).Set(float64(evt.Total))
			s.sweepDone.WithLabelValues(evt.Profile).Set(0)
			if s.tracker.start(evt.RunID) {
				s.runsRunning.Inc()
			}
		case progress.StageRunDone:
			s.completeRun(evt, "success")
		case progress.StageRunError:
			s.completeRun(evt, "error")
		case progress.StageFetchDone:
			s.handleFetchEvent(evt)
		}
	}
	return nil
}

func (s *PrometheusSink) completeRun(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(evt.Profile, result).Inc()
	if evt.Dur > 0 {
		s.runRuntime.WithLabelValues(evt.Profile, result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.RunID) {
		s.runsRunning.Dec()
	}
}

func (s *PrometheusSink) handleFetchEvent(evt progress.Event) {
	outcome := string(evt.Outcome)
	s.fetches.WithLabelValues(evt.Profile, outcome).Inc()
	s.sweepDone.WithLabelValues(evt.Profile).Inc()
	if evt.Rows > 0 {
		s.fetchRows.WithLabelValues(evt.Profile).Add(float64(evt.Rows))
	}
	if evt.Dur > 0 {
		s.fetchDuration.WithLabelValues(evt.Profile, outcome).Observe(evt.Dur.Seconds())
	}
}

// Name implements progress.NamedSink.
func (s *PrometheusSink) Name() string { return "prometheus" }

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[[16]byte]struct{})}
}

func (t *runTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
