package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/matchweek-ingest/internal/capture"
	"github.com/JakeFAU/matchweek-ingest/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters, gauges, and histograms follow task events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	now := time.Now()
	batch := []progress.Event{
		{RunID: "r1", TS: now, Stage: progress.StageRunStart, Season: "2025/26", Tasks: 3},
		{RunID: "r1", TS: now, Stage: progress.StageTaskStart, Season: "2025/26", Matchweek: 1},
		{RunID: "r1", TS: now, Stage: progress.StageTaskStart, Season: "2025/26", Matchweek: 2},
		{
			RunID: "r1", TS: now, Stage: progress.StageTaskDone, Season: "2025/26", Matchweek: 1,
			Status: capture.StatusSucceeded, Matches: 10, Dur: 40 * time.Second,
		},
		{RunID: "r1", TS: now, Stage: progress.StageReused, Season: "2025/26", Matchweek: 3},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.tasksStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.tasksInFlight))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.tasksCompleted.WithLabelValues("succeeded", "none")))
	require.Equal(t, 10.0, testutil.ToFloat64(sink.matches))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.tasksReused))
	require.Equal(t, 1, testutil.CollectAndCount(sink.taskRuntime, "matchweek_task_runtime_seconds"))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{
			RunID: "r1", TS: now, Stage: progress.StageTaskDone, Season: "2025/26", Matchweek: 2,
			Status: capture.StatusFailed, Phase: "extraction", Dur: time.Second,
		},
		{RunID: "r1", TS: now, Stage: progress.StageRunDone, Season: "2025/26"},
	}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.tasksInFlight))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.tasksCompleted.WithLabelValues("failed", "extraction")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted))
	require.NoError(t, sink.Close(context.Background()))
}

// TestPrometheusSinkDuplicateRegistration surfaces registry conflicts.
func TestPrometheusSinkDuplicateRegistration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	_, err := NewPrometheusSink(reg)
	require.NoError(t, err)
	_, err = NewPrometheusSink(reg)
	require.Error(t, err)
}
