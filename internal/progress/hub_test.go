package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestHubFlushesFullBatch(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{BufferSize: 8, MaxBatchEvents: 3, MaxBatchWait: time.Hour}, sink)
	t.Cleanup(func() { _ = hub.Close(context.Background()) })

	run := uuid.New()
	for _, county := range []string{"Bernalillo", "Catron", "Chaves"} {
		hub.Emit(fetchEvent(run, county))
	}
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, sink.batches()[0], 3)
}

func TestHubFlushesPartialBatchAfterWait(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	sink := &recordingSink{}
	hub := NewHub(Config{MaxBatchEvents: 50, MaxBatchWait: 250 * time.Millisecond, Clock: clock}, sink)
	t.Cleanup(func() { _ = hub.Close(context.Background()) })

	hub.Emit(fetchEvent(uuid.New(), "Bernalillo"))
	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	assert.Zero(t, sink.count())

	clock.Advance(250 * time.Millisecond)
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
}

// stalledHub has a queue nobody reads.
func stalledHub(clock clockwork.Clock) *Hub {
	return &Hub{
		cfg:    Config{SinkTimeout: time.Second},
		queue:  make(chan Event),
		stop:   make(chan struct{}),
		logger: zap.NewNop(),
		clock:  clock,
	}
}

func TestHubDropsFetchEventsWithoutBlocking(t *testing.T) {
	t.Parallel()

	hub := stalledHub(clockwork.NewFakeClock())
	start := time.Now()
	hub.Emit(fetchEvent(uuid.New(), "Luna"))
	assert.Less(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, Stats{Emitted: 1, Dropped: 1}, hub.Stats())
}

func TestHubLifecycleEventWaitsForRoom(t *testing.T) {
	t.Parallel()

	hub := stalledHub(clockwork.NewFakeClock())
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Emit(lifecycleEvent(uuid.New(), StageRunDone))
	}()

	select {
	case evt := <-hub.queue:
		assert.Equal(t, StageRunDone, evt.Stage)
	case <-time.After(time.Second):
		t.Fatal("lifecycle event never arrived")
	}
	<-done
	assert.Zero(t, hub.Stats().Dropped)
}

func TestHubLifecycleEventGivesUpAfterTimeout(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	hub := stalledHub(clock)
	done := make(chan struct{})
	go func() {
		defer close(done)
		hub.Emit(lifecycleEvent(uuid.New(), StageRunError))
	}()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	clock.Advance(time.Second)
	<-done
	assert.Equal(t, Stats{Emitted: 1, Dropped: 1}, hub.Stats())
}

func TestHubDiscardsInvalidEvents(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{MaxBatchEvents: 1}, sink)
	hub.Emit(Event{Stage: StageFetchDone})
	require.NoError(t, hub.Close(context.Background()))
	assert.Zero(t, sink.count())
	assert.Zero(t, hub.Stats().Emitted)
}

func TestHubIgnoresEmitAfterClose(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{MaxBatchEvents: 1}, sink)
	require.NoError(t, hub.Close(context.Background()))
	require.NoError(t, hub.Close(context.Background()))
	hub.Emit(lifecycleEvent(uuid.New(), StageRunDone))
	assert.Zero(t, sink.count())
	assert.True(t, sink.closed)
}

func TestHubCloseDeliversQueuedEvents(t *testing.T) {
	t.Parallel()

	sink := &recordingSink{}
	hub := NewHub(Config{MaxBatchEvents: 100, MaxBatchWait: time.Hour}, sink)
	run := uuid.New()
	hub.Emit(lifecycleEvent(run, StageRunStart))
	hub.Emit(fetchEvent(run, "Taos"))
	hub.Emit(lifecycleEvent(run, StageRunDone))

	require.NoError(t, hub.Close(context.Background()))
	var stages []Stage
	for _, b := range sink.batches() {
		for _, evt := range b {
			stages = append(stages, evt.Stage)
		}
	}
	assert.Equal(t, []Stage{StageRunStart, StageFetchDone, StageRunDone}, stages)
}

func TestHubLogsFailingSinkByName(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	hub := NewHub(Config{MaxBatchEvents: 1, Logger: zap.New(core)}, &failingSink{})
	hub.Emit(fetchEvent(uuid.New(), "Eddy"))
	require.NoError(t, hub.Close(context.Background()))

	entries := logs.FilterMessage("progress sink consume failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "failing", entries[0].ContextMap()["sink"])
}

type recordingSink struct {
	mu     sync.Mutex
	got    [][]Event
	closed bool
}

func (s *recordingSink) Consume(_ context.Context, batch []Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, append([]Event(nil), batch...))
	return nil
}

func (s *recordingSink) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.got)
}

func (s *recordingSink) batches() [][]Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]Event(nil), s.got...)
}

type failingSink struct{}

func (failingSink) Consume(context.Context, []Event) error { return errors.New("disk full") }
func (failingSink) Close(context.Context) error            { return nil }
func (failingSink) Name() string                           { return "failing" }

const testProfile = "particulates"

func lifecycleEvent(run uuid.UUID, stage Stage) Event {
	evt := Event{RunID: UUIDToBytes(run), TS: time.Now(), Stage: stage, Profile: testProfile}
	if stage == StageRunStart {
		evt.Total = 3
	}
	return evt
}

func fetchEvent(run uuid.UUID, county string) Event {
	return Event{
		RunID:     UUIDToBytes(run),
		TS:        time.Now(),
		Stage:     StageFetchDone,
		Profile:   testProfile,
		Group:     "Criteria Gases",
		Parameter: "PM10 Mass Data",
		County:    county,
		Period:    "2020",
		Outcome:   OutcomeData,
		Rows:      12,
	}
}
