package room

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"whiteboard/internal/oplog"
	"whiteboard/pkg/interfaces"
	"whiteboard/pkg/types"
)

// Palette is the fixed display-color rotation for participants without a color.
// ARCHITECTURAL DISCOVERY: Colors are picked by participant count at join time and
// are not checked against colors still in use, so two participants may share one.
var Palette = []string{
	"#FF6B6B",
	"#4ECDC4",
	"#45B7D1",
	"#FFA07A",
	"#98D8C8",
	"#F7DC6F",
	"#BB8FCE",
	"#85C1E2",
}

// Participant is one connected user within a room.
// The channel is borrowed from the transport and never exposed in roster views.
type Participant struct {
	ID       string
	Name     string
	Color    string
	Cursor   types.Point
	JoinedAt time.Time

	channel interfaces.Channel
	seq     uint64
}

// Info returns the roster view of the participant.
func (p *Participant) Info() types.ParticipantInfo {
	return types.ParticipantInfo{
		ID:     p.ID,
		Name:   p.Name,
		Color:  p.Color,
		Cursor: p.Cursor,
	}
}

// Channel returns the outbound channel the participant was joined with.
func (p *Participant) Channel() interfaces.Channel {
	return p.channel
}

// Meta carries client-supplied display metadata. Empty fields are generated.
type Meta struct {
	Name  string
	Color string
}

// Room is an isolated drawing session: one operation log plus its participants.
// Room is not safe for concurrent use; every call must come from the goroutine
// that owns the registry (the hub loop).
type Room struct {
	id           string
	createdAt    time.Time
	participants map[string]*Participant
	log          *oplog.Log
	joinSeq      uint64
}

// New creates an empty room with its own operation log.
func New(id string, maxEntries int, opts ...oplog.Option) *Room {
	return &Room{
		id:           id,
		createdAt:    time.Now(),
		participants: make(map[string]*Participant),
		log:          oplog.New(maxEntries, opts...),
	}
}

// ID returns the room identifier.
func (r *Room) ID() string { return r.id }

// CreatedAt returns when the room was created.
func (r *Room) CreatedAt() time.Time { return r.createdAt }

// AddParticipant joins a participant. An empty id is replaced by a generated one.
//
// If id is already present (a reconnect racing its own stale connection) the
// entry is reused: the new channel replaces the old one, which is returned as
// replaced so the caller can close it. Display color rotates through Palette by
// the participant count at join time unless meta supplies one.
func (r *Room) AddParticipant(id string, meta Meta, ch interfaces.Channel) (p *Participant, replaced interfaces.Channel) {
	if id == "" {
		id = uuid.New().String()
	}

	if existing, ok := r.participants[id]; ok {
		replaced = existing.channel
		existing.channel = ch
		if meta.Name != "" {
			existing.Name = meta.Name
		}
		if meta.Color != "" {
			existing.Color = meta.Color
		}
		return existing, replaced
	}

	color := meta.Color
	if color == "" {
		color = Palette[len(r.participants)%len(Palette)]
	}
	name := meta.Name
	if name == "" {
		name = defaultName(id)
	}

	r.joinSeq++
	p = &Participant{
		ID:       id,
		Name:     name,
		Color:    color,
		JoinedAt: time.Now(),
		channel:  ch,
		seq:      r.joinSeq,
	}
	r.participants[id] = p
	return p, nil
}

func defaultName(id string) string {
	short := id
	if len(short) > 6 {
		short = short[:6]
	}
	return "User " + short
}

// RemoveParticipant deletes a participant and reports whether the room is now empty.
// Removing an unknown id is a no-op.
func (r *Room) RemoveParticipant(id string) (empty bool) {
	delete(r.participants, id)
	return len(r.participants) == 0
}

// Participant looks up a participant by id.
func (r *Room) Participant(id string) (*Participant, bool) {
	p, ok := r.participants[id]
	return p, ok
}

// UpdateCursor records a pointer position. Unknown ids are ignored, which covers
// cursor messages that arrive after their sender disconnected.
func (r *Room) UpdateCursor(id string, point types.Point) bool {
	p, ok := r.participants[id]
	if !ok {
		return false
	}
	p.Cursor = point
	return true
}

// ListParticipants returns the roster in join order.
func (r *Room) ListParticipants() []types.ParticipantInfo {
	ordered := r.ordered()
	infos := make([]types.ParticipantInfo, len(ordered))
	for i, p := range ordered {
		infos[i] = p.Info()
	}
	return infos
}

// Recipients returns the channels of every participant except exceptID, in join order.
// Pass an empty exceptID to include everyone.
func (r *Room) Recipients(exceptID string) []interfaces.Channel {
	ordered := r.ordered()
	channels := make([]interfaces.Channel, 0, len(ordered))
	for _, p := range ordered {
		if p.ID == exceptID || p.channel == nil {
			continue
		}
		channels = append(channels, p.channel)
	}
	return channels
}

func (r *Room) ordered() []*Participant {
	ordered := make([]*Participant, 0, len(r.participants))
	for _, p := range r.participants {
		ordered = append(ordered, p)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].seq < ordered[j].seq })
	return ordered
}

// ParticipantCount returns the number of connected participants.
func (r *Room) ParticipantCount() int { return len(r.participants) }

// RecordDraw appends a completed stroke to the room's history.
func (r *Room) RecordDraw(authorID string, payload types.Stroke) types.Operation {
	return r.log.Append(types.OperationDraft{
		Kind:     types.OperationKindDraw,
		AuthorID: authorID,
		Payload:  payload,
	})
}

// Undo deactivates the newest active operation, if any.
func (r *Room) Undo() (types.Operation, bool) { return r.log.Undo() }

// Redo reactivates the next operation of the redo tail, if any.
func (r *Room) Redo() (types.Operation, bool) { return r.log.Redo() }

// Clear resets the history. It cannot be undone.
func (r *Room) Clear() { r.log.Reset() }

// CanUndo reports whether Undo would change the canvas.
func (r *Room) CanUndo() bool { return r.log.CanUndo() }

// CanRedo reports whether Redo would change the canvas.
func (r *Room) CanRedo() bool { return r.log.CanRedo() }

// ActiveOperations returns a copy of the visible operations.
func (r *Room) ActiveOperations() []types.Operation { return r.log.ActiveOperations() }

// Snapshot returns the drawing state used to bootstrap a joining participant.
func (r *Room) Snapshot() types.DrawingState { return r.log.Snapshot() }

// OperationCount returns the number of visible operations.
func (r *Room) OperationCount() int { return r.log.Cursor() + 1 }

// Summary describes the room for listings.
func (r *Room) Summary() types.RoomSummary {
	return types.RoomSummary{
		ID:               r.id,
		ParticipantCount: len(r.participants),
		OperationCount:   r.OperationCount(),
		CreatedAt:        r.createdAt,
	}
}
