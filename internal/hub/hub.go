package hub

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"whiteboard/internal/room"
	"whiteboard/internal/router"
	"whiteboard/pkg/interfaces"
	"whiteboard/pkg/types"
)

// DefaultQueueSize bounds the number of events waiting for the hub goroutine.
const DefaultQueueSize = 1000

type eventKind int

const (
	eventOpen eventKind = iota
	eventMessage
	eventClose
	eventTask
)

// event is one unit of work for the hub goroutine. Opens, frames, closes and
// posted tasks share a queue so a connection's close is never handled before
// frames it sent earlier.
type event struct {
	kind     eventKind
	connID   string
	channel  interfaces.Channel
	data     []byte
	task     func()
	reply    chan error
	received time.Time
}

// Hub serializes every room mutation through one goroutine.
// ARCHITECTURAL DISCOVERY: The router, the room registry and every room are owned
// by the run loop. Nothing else touches them, so none of them carries a lock.
type Hub struct {
	events   chan event
	shutdown chan struct{}
	done     chan struct{}

	router   *router.Router
	registry *room.Registry

	running bool
	mu      sync.RWMutex
}

// NewHub creates a hub over the given router and the registry it routes into.
func NewHub(r *router.Router, registry *room.Registry) *Hub {
	return &Hub{
		events:   make(chan event, DefaultQueueSize),
		router:   r,
		registry: registry,
	}
}

// Start begins hub processing.
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdown = make(chan struct{})
	h.done = make(chan struct{})
	shutdown, done := h.shutdown, h.done
	h.mu.Unlock()

	log.Println("Starting whiteboard hub...")
	go h.run(ctx, shutdown, done)
	return nil
}

// Stop shuts the hub down and waits for the run loop to exit.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdown)
	done := h.done
	h.mu.Unlock()

	log.Println("Stopping whiteboard hub...")
	<-done
	return nil
}

// IsRunning reports whether the run loop is accepting events.
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Open registers a new connection and waits until the hub has accepted it.
func (h *Hub) Open(ctx context.Context, connID string, ch interfaces.Channel) error {
	reply := make(chan error, 1)
	if err := h.enqueue(ctx, event{kind: eventOpen, connID: connID, channel: ch, reply: reply}); err != nil {
		return err
	}
	return h.await(ctx, reply)
}

// Deliver queues one inbound frame. It blocks while the queue is full, which
// pushes back on the reading connection instead of dropping its intents.
func (h *Hub) Deliver(ctx context.Context, connID string, data []byte) error {
	return h.enqueue(ctx, event{kind: eventMessage, connID: connID, data: data, received: time.Now()})
}

// Close queues the departure of a connection.
func (h *Hub) Close(connID string) error {
	return h.enqueue(context.Background(), event{kind: eventClose, connID: connID})
}

// Post runs fn on the hub goroutine. The room registry uses it to hand timer
// expiry back to the owner. Posts made after Stop are dropped.
func (h *Hub) Post(fn func()) {
	if err := h.enqueue(context.Background(), event{kind: eventTask, task: fn}); err != nil {
		log.Printf("Dropped hub task: %v", err)
	}
}

// Stats returns the registry counters as seen by the hub goroutine.
func (h *Hub) Stats(ctx context.Context) (types.RoomStats, error) {
	var stats types.RoomStats
	err := h.call(ctx, func() { stats = h.registry.Stats() })
	return stats, err
}

// Rooms lists live rooms ordered by id.
func (h *Hub) Rooms(ctx context.Context) ([]types.RoomSummary, error) {
	var summaries []types.RoomSummary
	err := h.call(ctx, func() { summaries = h.registry.Summaries() })
	return summaries, err
}

// call runs fn on the hub goroutine and waits for it to finish.
func (h *Hub) call(ctx context.Context, fn func()) error {
	reply := make(chan error, 1)
	task := func() {
		fn()
		reply <- nil
	}
	if err := h.enqueue(ctx, event{kind: eventTask, task: task}); err != nil {
		return err
	}
	return h.await(ctx, reply)
}

func (h *Hub) enqueue(ctx context.Context, ev event) error {
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	shutdown := h.shutdown
	h.mu.RUnlock()

	select {
	case h.events <- ev:
		return nil
	case <-shutdown:
		return ErrHubNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) await(ctx context.Context, reply chan error) error {
	h.mu.RLock()
	done := h.done
	h.mu.RUnlock()

	select {
	case err := <-reply:
		return err
	case <-done:
		return ErrHubNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main hub processing loop.
func (h *Hub) run(ctx context.Context, shutdown, done chan struct{}) {
	defer close(done)
	defer h.registry.Shutdown()
	defer log.Println("Hub processing stopped")

	for {
		select {
		case ev := <-h.events:
			h.handle(ev)
		case <-shutdown:
			log.Println("Hub shutdown requested")
			return
		case <-ctx.Done():
			log.Println("Hub context cancelled")
			h.mu.Lock()
			if h.running && h.shutdown == shutdown {
				h.running = false
				close(shutdown)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) handle(ev event) {
	switch ev.kind {
	case eventOpen:
		err := h.router.Open(ev.connID, ev.channel)
		if err != nil {
			log.Printf("Connection open rejected: conn=%s err=%v", ev.connID, err)
		}
		ev.reply <- err

	case eventMessage:
		if err := h.router.HandleMessage(ev.connID, ev.data); err != nil {
			h.logRoutingError(ev, err)
		}

	case eventClose:
		h.router.Close(ev.connID)

	case eventTask:
		ev.task()
	}
}

// logRoutingError logs router failures. Rejected intents never stop the loop.
func (h *Hub) logRoutingError(ev event, err error) {
	switch {
	case errors.Is(err, router.ErrUnknownConnection), errors.Is(err, router.ErrSuperseded):
		log.Printf("Dropped frame from stale connection %s: %v", ev.connID, err)
	default:
		log.Printf("Intent rejected: conn=%s queued=%s err=%v", ev.connID, time.Since(ev.received).Round(time.Microsecond), err)
	}
}
