package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/aqsharvest/internal/progress"
)

// TestPrometheusSinkRecordsMetrics ensures counters and histograms are incremented from events.
func TestPrometheusSinkRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	now := time.Now()
	batch := []progress.Event{
		{RunID: runID, TS: now, Stage: progress.StageRunStart, Profile: "particulates", Total: 3},
		{
			RunID:   runID,
			TS:      now.Add(time.Second),
			Stage:   progress.StageFetchDone,
			Profile: "particulates",
			County:  "Bernalillo",
			Period:  "2020",
			Rows:    366,
			Outcome: progress.OutcomeData,
			Dur:     800 * time.Millisecond,
		},
		{RunID: runID, TS: now.Add(2 * time.Second), Stage: progress.StageFetchDone, Profile: "particulates", Outcome: progress.OutcomeEmpty},
		{RunID: runID, TS: now.Add(15 * time.Second), Stage: progress.StageRunDone, Profile: "particulates", Dur: 15 * time.Second},
	}

	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsStarted.WithLabelValues("particulates")))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("particulates", "success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, 3.0, testutil.ToFloat64(sink.sweepPlanned.WithLabelValues("particulates")))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.sweepDone.WithLabelValues("particulates")))

	require.InDelta(t, 1.0, testutil.ToFloat64(sink.fetches.WithLabelValues("particulates", "data")), 1e-9)
	require.InDelta(t, 1.0, testutil.ToFloat64(sink.fetches.WithLabelValues("particulates", "empty")), 1e-9)
	require.InDelta(t, 366.0, testutil.ToFloat64(sink.fetchRows.WithLabelValues("particulates")), 1e-9)
	require.Equal(t, 1, testutil.CollectAndCount(sink.fetchDuration, "aqsharvest_sweep_fetch_duration_seconds"))
}

// TestPrometheusSinkRunError tracks failed runs and the running gauge.
func TestPrometheusSinkRunError(t *testing.T) {
	t.Parallel()

	sink, err := NewPrometheusSink(prometheus.NewRegistry())
	require.NoError(t, err)

	runID := progress.UUIDToBytes(uuid.New())
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunStart, Profile: "harvest"},
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunStart, Profile: "harvest"},
	}))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsRunning))

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{RunID: runID, TS: time.Now(), Stage: progress.StageRunError, Profile: "harvest", Note: "no parameters"},
	}))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.runsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.runsCompleted.WithLabelValues("harvest", "error")))
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
