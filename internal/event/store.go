package event

import "context"

// Store is the append-only log of post events.
type Store interface {
	// Append writes events in one transaction. An event with a zero Version
	// takes the next version of its post; the store serializes concurrent
	// writers to the same post so versions never collide.
	Append(ctx context.Context, events ...Event) error
	// Load returns a post's events in version order.
	Load(ctx context.Context, aggregateID string) ([]Event, error)
	// LoadByType returns every event of one kind, oldest first.
	LoadByType(ctx context.Context, eventType Type) ([]Event, error)
}
