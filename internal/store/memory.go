package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outcome labels understood by ApplyStep.
const (
	OutcomeData   = "data"
	OutcomeEmpty  = "empty"
	OutcomeFailed = "failed"
)

// MemoryRuns keeps runs for the lifetime of the process.
type MemoryRuns struct {
	mu    sync.RWMutex
	runs  map[uuid.UUID]*Run
	order []uuid.UUID
}

// NewMemoryRuns returns an empty repository.
func NewMemoryRuns() *MemoryRuns {
	return &MemoryRuns{runs: make(map[uuid.UUID]*Run)}
}

var _ RunRepository = (*MemoryRuns)(nil)

// StartRun implements RunRepository.
func (m *MemoryRuns) StartRun(_ context.Context, id uuid.UUID, profile string, total int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := m.ensure(id)
	run.Profile = profile
	run.Total = total
	run.Status = RunRunning
	if run.StartedAt.IsZero() || at.Before(run.StartedAt) {
		run.StartedAt = at
	}
	return nil
}

// ApplyStep implements RunRepository. Steps for unknown runs create the run.
func (m *MemoryRuns) ApplyStep(_ context.Context, id uuid.UUID, d StepDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := m.ensure(id)
	run.Completed++
	switch d.Outcome {
	case OutcomeData:
		run.Data++
	case OutcomeEmpty:
		run.Empty++
	case OutcomeFailed:
		run.Failed++
	}
	run.Rows += d.Rows
	if d.Label != "" {
		run.Last = d.Label
	}
	return nil
}

// CompleteRun implements RunRepository.
func (m *MemoryRuns) CompleteRun(_ context.Context, id uuid.UUID, at time.Time, status RunStatus, errMsg *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := m.ensure(id)
	run.Status = status
	finished := at
	run.FinishedAt = &finished
	run.ErrorMessage = errMsg
	return nil
}

// GetRun implements RunRepository.
func (m *MemoryRuns) GetRun(_ context.Context, id uuid.UUID) (Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[id]
	if !ok {
		return Run{}, ErrNotFound
	}
	return *run, nil
}

// ListRuns implements RunRepository.
func (m *MemoryRuns) ListRuns(_ context.Context, status *RunStatus, limit, offset int) ([]Run, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Run, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		run := m.runs[m.order[i]]
		if status != nil && run.Status != *status {
			continue
		}
		out = append(out, *run)
	}
	if offset >= len(out) {
		return []Run{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRuns) ensure(id uuid.UUID) *Run {
	run, ok := m.runs[id]
	if !ok {
		run = &Run{ID: id, Status: RunRunning}
		m.runs[id] = run
		m.order = append(m.order, id)
	}
	return run
}
