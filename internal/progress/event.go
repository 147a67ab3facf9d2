// Package progress defines the event structures emitted by the harvest driver.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart  Stage = "RUN_START"
	StageRunDone   Stage = "RUN_DONE"
	StageRunError  Stage = "RUN_ERROR"
	StageFetchDone Stage = "FETCH_DONE"
)

// Outcome classifies a single dailyData request.
type Outcome string

// Fetch outcomes. Failed requests are still counted as steps of the sweep.
const (
	OutcomeData   Outcome = "data"
	OutcomeEmpty  Outcome = "empty"
	OutcomeFailed Outcome = "failed"
)

// Event captures a single step of harvest progress.
type Event struct {
	// RunID uniquely identifies a run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or fetch milestone occurred.
	Stage Stage
	// Profile is the sweep profile name (harvest, particulates, toxics).
	Profile string
	// Total is the planned number of requests; set on RUN_START.
	Total int64
	// Group is the parameter class or gas folder.
	Group string
	// Parameter is the pollutant name.
	Parameter string
	// County is the county name.
	County string
	// Period is the year, or "start-end" for aggregate requests.
	Period string
	// Rows is the number of records returned.
	Rows int64
	// Outcome is set on FETCH_DONE.
	Outcome Outcome
	// Dur captures request latency for fetches and wall time for runs.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart:
		if e.Total < 0 {
			return errors.New("total must be >= 0")
		}
	case StageRunDone, StageRunError:
	case StageFetchDone:
		if e.Outcome == "" {
			return errors.New("fetch done requires outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ClassifyRows maps a fetch result onto an Outcome.
func ClassifyRows(rows int, failed bool) Outcome {
	switch {
	case failed:
		return OutcomeFailed
	case rows > 0:
		return OutcomeData
	default:
		return OutcomeEmpty
	}
}
