package sinks

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/matchweek-ingest/internal/capture"
	"github.com/JakeFAU/matchweek-ingest/internal/progress"
)

// PrometheusSink exports run and task progress as Prometheus collectors.
type PrometheusSink struct {
	runsStarted    prometheus.Counter
	runsCompleted  prometheus.Counter
	tasksStarted   prometheus.Counter
	tasksCompleted *prometheus.CounterVec
	tasksInFlight  prometheus.Gauge
	tasksReused    prometheus.Counter
	taskRuntime    *prometheus.HistogramVec
	matches        prometheus.Counter

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matchweek_runs_started_total",
			Help: "Scrape runs started.",
		}),
		runsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matchweek_runs_completed_total",
			Help: "Scrape runs that reported a summary.",
		}),
		tasksStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matchweek_tasks_started_total",
			Help: "Capture tasks picked up by a worker slot.",
		}),
		tasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "matchweek_tasks_completed_total",
			Help: "Capture tasks finished, partitioned by status and failure phase.",
		}, []string{"status", "phase"}),
		tasksInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "matchweek_tasks_in_flight",
			Help: "Capture tasks currently executing.",
		}),
		tasksReused: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matchweek_tasks_reused_total",
			Help: "Matchweeks skipped because a capture already existed.",
		}),
		taskRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "matchweek_task_runtime_seconds",
			Help:    "Wall time per capture task.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"status"}),
		matches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "matchweek_matches_captured_total",
			Help: "Match pages captured by successful tasks.",
		}),
		inFlight: make(map[string]struct{}),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.tasksStarted,
		s.tasksCompleted,
		s.tasksInFlight,
		s.tasksReused,
		s.taskRuntime,
		s.matches,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.runsStarted.Inc()
		case progress.StageRunDone:
			s.runsCompleted.Inc()
		case progress.StageReused:
			s.tasksReused.Inc()
		case progress.StageTaskStart:
			s.tasksStarted.Inc()
			if _, ok := s.inFlight[taskKey(evt)]; !ok {
				s.inFlight[taskKey(evt)] = struct{}{}
				s.tasksInFlight.Inc()
			}
		case progress.StageTaskDone:
			s.handleDone(evt)
		}
	}
	return nil
}

func (s *PrometheusSink) handleDone(evt progress.Event) {
	phase := evt.Phase
	if phase == "" {
		phase = "none"
	}
	s.tasksCompleted.WithLabelValues(string(evt.Status), phase).Inc()
	if evt.Dur > 0 {
		s.taskRuntime.WithLabelValues(string(evt.Status)).Observe(evt.Dur.Seconds())
	}
	if evt.Status == capture.StatusSucceeded && evt.Matches > 0 {
		s.matches.Add(float64(evt.Matches))
	}
	if _, ok := s.inFlight[taskKey(evt)]; ok {
		delete(s.inFlight, taskKey(evt))
		s.tasksInFlight.Dec()
	}
}

// Close implements progress.Sink; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

func taskKey(evt progress.Event) string {
	return evt.RunID + "|" + evt.Season + "|" + strconv.Itoa(evt.Matchweek)
}
