package room

import (
	"log"
	"sort"
	"time"

	"whiteboard/internal/oplog"
	"whiteboard/pkg/interfaces"
	"whiteboard/pkg/types"
)

// DefaultGracePeriod is how long an empty room survives before it is reclaimed.
const DefaultGracePeriod = 5 * time.Minute

// ReclaimFunc observes a room right after the registry dropped it.
type ReclaimFunc func(r *Room)

// Registry creates rooms lazily and reclaims rooms that stay empty for the grace period.
// ARCHITECTURAL DISCOVERY: Like Room, the registry is owned by a single goroutine.
// Timers fire elsewhere, so expiry is handed back to the owner through post.
type Registry struct {
	rooms      map[string]*Room
	pending    map[string]*reclamation
	maxEntries int
	grace      time.Duration
	scheduler  interfaces.Scheduler
	post       func(func())
	onReclaim  ReclaimFunc
	logOpts    []oplog.Option
}

// reclamation is one armed timer. Its pointer identity tells a live timer from a
// replaced one whose callback was already queued.
type reclamation struct {
	timer interfaces.Timer
}

// Option configures a Registry.
type Option func(*Registry)

// WithScheduler replaces the timer source.
func WithScheduler(s interfaces.Scheduler) Option {
	return func(r *Registry) { r.scheduler = s }
}

// WithPoster sets how timer expiry is delivered to the owning goroutine.
func WithPoster(post func(func())) Option {
	return func(r *Registry) { r.post = post }
}

// WithReclaimHandler observes reclaimed rooms (for archiving).
func WithReclaimHandler(fn ReclaimFunc) Option {
	return func(r *Registry) { r.onReclaim = fn }
}

// WithLogOptions is applied to the operation log of every room created.
func WithLogOptions(opts ...oplog.Option) Option {
	return func(r *Registry) { r.logOpts = append(r.logOpts, opts...) }
}

// NewRegistry creates an empty registry.
func NewRegistry(maxEntries int, grace time.Duration, opts ...Option) *Registry {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	r := &Registry{
		rooms:      make(map[string]*Room),
		pending:    make(map[string]*reclamation),
		maxEntries: maxEntries,
		grace:      grace,
		scheduler:  interfaces.RealScheduler{},
		post:       func(f func()) { f() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// GetOrCreate returns the room for roomID, creating it on first use.
func (r *Registry) GetOrCreate(roomID string) *Room {
	if rm, ok := r.rooms[roomID]; ok {
		return rm
	}
	rm := New(roomID, r.maxEntries, r.logOpts...)
	r.rooms[roomID] = rm
	log.Printf("Room created: room=%s", roomID)
	return rm
}

// Get returns an existing room.
func (r *Registry) Get(roomID string) (*Room, bool) {
	rm, ok := r.rooms[roomID]
	return rm, ok
}

// ScheduleReclamation arms the grace timer for roomID, replacing any timer
// already pending for it.
func (r *Registry) ScheduleReclamation(roomID string) {
	if _, ok := r.rooms[roomID]; !ok {
		return
	}
	r.CancelReclamation(roomID)

	p := &reclamation{}
	r.pending[roomID] = p
	p.timer = r.scheduler.AfterFunc(r.grace, func() {
		r.post(func() { r.expire(roomID, p) })
	})
	log.Printf("Room reclamation armed: room=%s grace=%s", roomID, r.grace)
}

// CancelReclamation disarms a pending timer. It reports whether one was pending.
func (r *Registry) CancelReclamation(roomID string) bool {
	p, ok := r.pending[roomID]
	if !ok {
		return false
	}
	delete(r.pending, roomID)
	if p.timer != nil {
		p.timer.Stop()
	}
	return true
}

// IsReclamationPending reports whether roomID has an armed timer.
func (r *Registry) IsReclamationPending(roomID string) bool {
	_, ok := r.pending[roomID]
	return ok
}

// expire runs on the owning goroutine when a grace timer fires.
func (r *Registry) expire(roomID string, p *reclamation) {
	if r.pending[roomID] != p {
		return // cancelled or re-armed after this callback was queued
	}
	delete(r.pending, roomID)

	rm, ok := r.rooms[roomID]
	if !ok {
		return
	}
	if rm.ParticipantCount() > 0 {
		log.Printf("Room reclamation skipped, participants present: room=%s", roomID)
		return
	}

	delete(r.rooms, roomID)
	log.Printf("Room reclaimed: room=%s operations=%d", roomID, rm.OperationCount())
	if r.onReclaim != nil {
		r.onReclaim(rm)
	}
}

// Stats returns aggregate counts for health reporting.
func (r *Registry) Stats() types.RoomStats {
	stats := types.RoomStats{RoomCount: len(r.rooms)}
	for _, rm := range r.rooms {
		stats.ParticipantCount += rm.ParticipantCount()
	}
	return stats
}

// Summaries lists live rooms sorted by id.
func (r *Registry) Summaries() []types.RoomSummary {
	summaries := make([]types.RoomSummary, 0, len(r.rooms))
	for _, rm := range r.rooms {
		summaries = append(summaries, rm.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ID < summaries[j].ID })
	return summaries
}

// Shutdown disarms every pending timer.
func (r *Registry) Shutdown() {
	for roomID := range r.pending {
		r.CancelReclamation(roomID)
	}
}
