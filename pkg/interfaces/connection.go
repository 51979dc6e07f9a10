package interfaces

import "context"

// Channel is the outbound capability the core borrows from the transport.
// ARCHITECTURAL DISCOVERY: Rooms and the session router see only send + open state,
// so the core never depends on concrete websocket machinery and tests can supply a fake.
type Channel interface {
	// Send queues one encoded frame for delivery. It must not block.
	Send(data []byte) error

	// IsOpen reports whether the transport can still accept frames.
	// Sends to a channel that is not open are skipped by callers.
	IsOpen() bool
}

// Dispatcher accepts transport lifecycle events and inbound frames.
// The hub implements it; the websocket handler only ever talks to this surface.
type Dispatcher interface {
	// Open registers a connection before any of its frames are delivered.
	Open(ctx context.Context, connID string, ch Channel) error

	// Deliver hands one inbound frame over, in arrival order per connection.
	Deliver(ctx context.Context, connID string, data []byte) error

	// Close reports that the transport is gone.
	Close(connID string) error
}
