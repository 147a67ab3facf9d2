package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/aqsharvest/internal/progress"
)

// LogSink emits structured logs for each progress event. Fetch events are
// logged at debug level; run lifecycle events at info.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.Stringer("run_id", evt.RunUUID()),
			zap.String("stage", string(evt.Stage)),
			zap.String("profile", evt.Profile),
		}
		switch evt.Stage {
		case progress.StageFetchDone:
			fields = append(fields,
				zap.String("group", evt.Group),
				zap.String("parameter", evt.Parameter),
				zap.String("county", evt.County),
				zap.String("period", evt.Period),
				zap.String("outcome", string(evt.Outcome)),
				zap.Int64("rows", evt.Rows),
				zap.Duration("dur", evt.Dur),
			)
			s.logger.Debug("progress event", fields...)
		case progress.StageRunStart:
			s.logger.Info("progress event", append(fields, zap.Int64("total", evt.Total))...)
		default:
			if evt.Note != "" {
				fields = append(fields, zap.String("note", evt.Note))
			}
			s.logger.Info("progress event", append(fields, zap.Duration("dur", evt.Dur))...)
		}
	}
	return nil
}

// Name implements progress.NamedSink.
func (s *LogSink) Name() string { return "log" }

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
