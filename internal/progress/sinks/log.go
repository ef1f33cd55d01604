package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/matchweek-ingest/internal/capture"
	"github.com/JakeFAU/matchweek-ingest/internal/progress"
)

// LogSink writes one structured log line per event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch. Failed tasks are logged at warn level.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
			zap.String("season", evt.Season),
		}
		if evt.Matchweek > 0 {
			fields = append(fields, zap.Int("matchweek", evt.Matchweek))
		}
		if evt.Worker > 0 {
			fields = append(fields, zap.Int("worker", evt.Worker))
		}
		if evt.Status != "" {
			fields = append(fields, zap.String("status", string(evt.Status)))
		}
		if evt.Phase != "" {
			fields = append(fields, zap.String("phase", evt.Phase))
		}
		if evt.Tasks > 0 {
			fields = append(fields, zap.Int("tasks", evt.Tasks))
		}
		if evt.Matches > 0 {
			fields = append(fields, zap.Int("matches", evt.Matches))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		if evt.Status == capture.StatusFailed {
			s.logger.Warn("progress event", fields...)
			continue
		}
		s.logger.Info("progress event", fields...)
	}
	return nil
}

// Close implements progress.Sink; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
