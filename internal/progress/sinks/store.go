package sinks

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/aqsharvest/internal/progress"
	"github.com/JakeFAU/aqsharvest/internal/store"
)

// StoreSink persists progress via a store.RunRepository so the status API
// can report on running and finished sweeps.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume forwards each event to the repository in order. It respects ctx
// deadlines and returns the first repository error.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		runID := evt.RunUUID()
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.repo.StartRun(ctx, runID, evt.Profile, evt.Total, evt.TS); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case progress.StageFetchDone:
			if err := s.repo.ApplyStep(ctx, runID, stepDelta(evt)); err != nil {
				return fmt.Errorf("apply step: %w", err)
			}
		case progress.StageRunDone:
			if err := s.repo.CompleteRun(ctx, runID, evt.TS, store.RunSuccess, nil); err != nil {
				return fmt.Errorf("complete run: %w", err)
			}
		case progress.StageRunError:
			var note *string
			if evt.Note != "" {
				note = &evt.Note
			}
			if err := s.repo.CompleteRun(ctx, runID, evt.TS, store.RunError, note); err != nil {
				return fmt.Errorf("complete run: %w", err)
			}
		}
	}
	return nil
}

func stepDelta(evt progress.Event) store.StepDelta {
	parts := make([]string, 0, 4)
	for _, p := range []string{evt.Group, evt.Parameter, evt.County, evt.Period} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return store.StepDelta{
		Outcome: string(evt.Outcome),
		Rows:    evt.Rows,
		Label:   strings.Join(parts, "/"),
	}
}

// Name implements progress.NamedSink.
func (s *StoreSink) Name() string { return "store" }

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

var _ progress.Sink = (*StoreSink)(nil)
