package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Config controls buffering and batching for the Hub. Zero values take the
// defaults below.
type Config struct {
	// BufferSize is the event queue capacity (1024).
	BufferSize int
	// MaxBatchEvents flushes once this many events are pending (64).
	MaxBatchEvents int
	// MaxBatchWait flushes a partial batch after this long (250ms).
	MaxBatchWait time.Duration
	// SinkTimeout bounds each Consume call and how long lifecycle events
	// wait for queue space (10s).
	SinkTimeout time.Duration
	// BaseContext parents sink calls.
	BaseContext context.Context
	Clock       clockwork.Clock
	Logger      *zap.Logger
}

const (
	defaultBufferSize     = 1024
	defaultMaxBatchEvents = 64
	defaultMaxBatchWait   = 250 * time.Millisecond
	defaultSinkTimeout    = 10 * time.Second
	dropLogInterval       = 5 * time.Second
)

// Stats counts events seen by Emit.
type Stats struct {
	Emitted int64
	Dropped int64
}

// Hub batches events and fans them out to sinks on one goroutine.
//
// FETCH_DONE events never block the caller and are dropped when the queue is
// full. Run lifecycle events (RUN_START, RUN_DONE, RUN_ERROR) wait up to
// SinkTimeout for space so run state stays consistent.
type Hub struct {
	cfg    Config
	sinks  []Sink
	queue  chan Event
	stop   chan struct{}
	done   chan struct{}
	logger *zap.Logger
	clock  clockwork.Clock

	emitted     atomic.Int64
	dropped     atomic.Int64
	pendingDrop atomic.Int64
	lastDropLog atomic.Int64
	closed      atomic.Bool

	closeOnce sync.Once
	closeCtx  context.Context
}

// NewHub starts a Hub over the non-nil sinks.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	h := &Hub{
		cfg:    cfg,
		queue:  make(chan Event, cfg.BufferSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: cfg.Logger,
		clock:  cfg.Clock,
	}
	for _, s := range sinks {
		if s != nil {
			h.sinks = append(h.sinks, s)
		}
	}
	go h.loop()
	return h
}

// Emit queues evt. Invalid events and events after Close are discarded.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	h.emitted.Add(1)
	select {
	case h.queue <- evt:
		return
	default:
	}
	if evt.Stage != StageFetchDone && h.waitForRoom(evt) {
		return
	}
	h.recordDrop(evt.Stage)
}

func (h *Hub) waitForRoom(evt Event) bool {
	timer := h.clock.NewTimer(h.cfg.SinkTimeout)
	defer timer.Stop()
	select {
	case h.queue <- evt:
		return true
	case <-timer.Chan():
		return false
	case <-h.stop:
		return false
	}
}

func (h *Hub) recordDrop(stage Stage) {
	h.dropped.Add(1)
	pending := h.pendingDrop.Add(1)
	now := h.clock.Now().UnixNano()
	last := h.lastDropLog.Load()
	if last != 0 && now-last < dropLogInterval.Nanoseconds() {
		return
	}
	if h.lastDropLog.CompareAndSwap(last, now) {
		h.pendingDrop.Add(-pending)
		h.logger.Warn("progress events dropped due to backpressure",
			zap.Int64("dropped", pending),
			zap.String("last_stage", string(stage)),
		)
	}
}

// Stats reports how many events were accepted and dropped so far.
func (h *Hub) Stats() Stats {
	if h == nil {
		return Stats{}
	}
	return Stats{Emitted: h.emitted.Load(), Dropped: h.dropped.Load()}
}

// Close stops intake, flushes what is queued, closes the sinks and waits for
// the hub goroutine. Later calls wait on the same shutdown.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stop)
	})
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

// pending is the batch being assembled plus its flush timer.
type pending struct {
	events []Event
	timer  clockwork.Timer
}

func (p *pending) timerC() <-chan time.Time {
	if p.timer == nil {
		return nil
	}
	return p.timer.Chan()
}

func (p *pending) take() []Event {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	out := p.events
	p.events = nil
	return out
}

func (h *Hub) loop() {
	defer close(h.done)
	var p pending
	for {
		select {
		case evt := <-h.queue:
			p.events = append(p.events, evt)
			switch {
			case len(p.events) >= h.cfg.MaxBatchEvents:
				h.flush(p.take())
			case p.timer == nil:
				p.timer = h.clock.NewTimer(h.cfg.MaxBatchWait)
			}
		case <-p.timerC():
			p.timer = nil
			h.flush(p.take())
		case <-h.stop:
			h.shutdown(p.take())
			return
		}
	}
}

func (h *Hub) shutdown(batch []Event) {
	for {
		select {
		case evt := <-h.queue:
			batch = append(batch, evt)
			if len(batch) >= h.cfg.MaxBatchEvents {
				h.flush(batch)
				batch = nil
			}
		default:
			h.flush(batch)
			h.closeSinks()
			return
		}
	}
}

func (h *Hub) flush(batch []Event) {
	if len(batch) == 0 {
		return
	}
	for _, sink := range h.sinks {
		ctx, cancel := context.WithTimeout(h.cfg.BaseContext, h.cfg.SinkTimeout)
		if err := sink.Consume(ctx, batch); err != nil {
			h.logger.Warn("progress sink consume failed",
				zap.String("sink", sinkName(sink)),
				zap.Int("events", len(batch)),
				zap.Error(err),
			)
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("progress sink close failed", zap.String("sink", sinkName(sink)), zap.Error(err))
		}
	}
}
