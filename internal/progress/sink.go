package progress

import "context"

// Sink consumes batches of progress events. Batches arrive in emission order
// and Consume is never called concurrently by a Hub.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events; Hub satisfies this interface so
// pipeline stages stay agnostic about how events are buffered.
type Emitter interface {
	Emit(evt Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

// Emit calls f(evt).
func (f EmitterFunc) Emit(evt Event) {
	f(evt)
}

// Discard drops every event.
var Discard Emitter = EmitterFunc(func(Event) {})
