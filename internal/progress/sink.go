package progress

import "context"

// Sink consumes batches of events. Consume is only ever called from the hub's
// goroutine.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events. A nil *Hub is a valid Emitter that drops
// everything.
type Emitter interface {
	Emit(evt Event)
}
