package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested record does not exist.
var ErrNotFound = errors.New("run record not found")

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run statuses.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Run is the progress snapshot of one sweep.
type Run struct {
	ID         uuid.UUID
	Profile    string
	Status     RunStatus
	StartedAt  time.Time
	FinishedAt *time.Time
	// Total is the planned number of requests.
	Total int64
	// Completed counts finished requests of any outcome.
	Completed int64
	Data      int64
	Empty     int64
	Failed    int64
	Rows      int64
	// Last describes the most recently completed request.
	Last         string
	ErrorMessage *string
}

// StepDelta is the effect of one completed request on a Run.
type StepDelta struct {
	Outcome string
	Rows    int64
	Label   string
}

// RunRepository persists incremental run progress.
type RunRepository interface {
	// StartRun inserts (or idempotently updates) a running run.
	StartRun(ctx context.Context, id uuid.UUID, profile string, total int64, at time.Time) error
	// ApplyStep adds one completed request to the run.
	ApplyStep(ctx context.Context, id uuid.UUID, delta StepDelta) error
	// CompleteRun marks the run finished with the provided status and error.
	CompleteRun(ctx context.Context, id uuid.UUID, at time.Time, status RunStatus, errMsg *string) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, id uuid.UUID) (Run, error)
	// ListRuns returns runs newest first, filtered by optional status plus limit/offset.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
}
