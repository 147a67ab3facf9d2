package progress

import "context"

// Sink receives batches of events from the Hub. Consume is called from the
// hub goroutine only, with a per-call deadline.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// NamedSink labels a sink in hub logs.
type NamedSink interface {
	Sink
	Name() string
}

// Emitter is what the driver reports to.
type Emitter interface {
	Emit(evt Event)
}

func sinkName(s Sink) string {
	if n, ok := s.(NamedSink); ok {
		return n.Name()
	}
	return "unnamed"
}
