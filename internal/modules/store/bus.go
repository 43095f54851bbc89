package store

import "context"

// EventHandler consumes one dispatched domain event.
type EventHandler func(ctx context.Context, e Event) error

// Bus maps event names to an ordered list of handlers. The table is
// filled once at process start; Dispatch runs handlers synchronously on
// the committing goroutine, in registration order, and stops at the
// first failure.
type Bus struct {
	handlers map[string][]EventHandler
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string][]EventHandler)}
}

// Subscribe appends a handler for the named event. Not safe for
// concurrent use with Dispatch; register everything before serving.
func (b *Bus) Subscribe(name string, h EventHandler) {
	b.handlers[name] = append(b.handlers[name], h)
}

// Dispatch invokes every handler registered for the event's name. Events
// with no handlers are dropped silently.
func (b *Bus) Dispatch(ctx context.Context, e Event) error {
	for _, h := range b.handlers[e.Name()] {
		if err := h(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
