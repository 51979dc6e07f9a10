package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"whiteboard/internal/room"
	"whiteboard/pkg/interfaces"
	"whiteboard/pkg/types"
)

// connState is the per-connection protocol state: unjoined -> joined -> closed.
type connState int

const (
	stateUnjoined connState = iota
	stateJoined
)

// session binds one transport connection to at most one (room, participant) pair.
type session struct {
	connID        string
	channel       interfaces.Channel
	state         connState
	room          *room.Room
	participantID string
}

// Router is the session router: it decodes inbound frames into intents,
// applies them to the owning room and fans resulting events out.
// ARCHITECTURAL DISCOVERY: Router holds no locks. Every method must be called from
// the single hub goroutine, which serializes all mutations of every room.
type Router struct {
	registry     *room.Registry
	sessions     map[string]*session
	errorLimiter *RateLimiter
	defaultRoom  string
}

// Option configures a Router.
type Option func(*Router)

// WithDefaultRoom sets the room used by joins without a usable roomId.
func WithDefaultRoom(roomID string) Option {
	return func(r *Router) {
		if types.IsValidID(roomID, types.MaxRoomIDLength) {
			r.defaultRoom = roomID
		}
	}
}

// WithErrorReplyLimit caps error events per connection per minute.
func WithErrorReplyLimit(limit int) Option {
	return func(r *Router) {
		if limit > 0 {
			r.errorLimiter = NewRateLimiter(limit)
		}
	}
}

// NewRouter creates a router over the given room registry.
func NewRouter(registry *room.Registry, opts ...Option) *Router {
	r := &Router{
		registry:     registry,
		sessions:     make(map[string]*session),
		errorLimiter: NewRateLimiter(DefaultErrorRepliesPerMinute),
		defaultRoom:  types.DefaultRoomID,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open registers a new transport connection in the unjoined state.
func (r *Router) Open(connID string, ch interfaces.Channel) error {
	if _, exists := r.sessions[connID]; exists {
		return ErrDuplicateConnection
	}
	r.sessions[connID] = &session{connID: connID, channel: ch, state: stateUnjoined}
	return nil
}

// SessionCount returns the number of open connections known to the router.
func (r *Router) SessionCount() int {
	return len(r.sessions)
}

// HandleMessage processes one inbound frame from connID.
// Returned errors are informational: the connection stays usable either way.
func (r *Router) HandleMessage(connID string, data []byte) error {
	sess, ok := r.sessions[connID]
	if !ok {
		return ErrUnknownConnection
	}

	intent, err := types.DecodeIntent(data)
	if err != nil {
		r.replyError(sess, "Invalid message format")
		return err
	}

	if intent.Type == types.IntentJoin {
		if sess.state == stateJoined {
			return ErrAlreadyJoined
		}
		r.handleJoin(sess, intent)
		return nil
	}

	if !isKnownIntent(intent.Type) {
		return fmt.Errorf("%w: %q", ErrUnknownIntent, intent.Type)
	}

	// Intents other than join are dropped until the connection joins.
	if sess.state != stateJoined {
		return ErrNotJoined
	}
	if !r.isCurrent(sess) {
		return ErrSuperseded
	}

	switch intent.Type {
	case types.IntentDraw:
		return r.handleDraw(sess, intent)
	case types.IntentCursor:
		return r.handleCursor(sess, intent)
	case types.IntentUndo:
		r.handleUndo(sess)
	case types.IntentRedo:
		r.handleRedo(sess)
	case types.IntentClear:
		r.handleClear(sess)
	}
	return nil
}

// Close handles a transport close: the participant leaves its room and the
// remaining participants are told. The last leaver arms room reclamation.
func (r *Router) Close(connID string) {
	sess, ok := r.sessions[connID]
	if !ok {
		return
	}
	delete(r.sessions, connID)
	r.errorLimiter.Forget(connID)

	if sess.state != stateJoined || !r.isCurrent(sess) {
		return
	}

	rm := sess.room
	empty := rm.RemoveParticipant(sess.participantID)
	log.Printf("Participant left: room=%s user=%s remaining=%d", rm.ID(), sess.participantID, rm.ParticipantCount())

	if empty {
		r.registry.ScheduleReclamation(rm.ID())
		return
	}
	r.broadcast(rm.Recipients(""), types.Event{
		Type:   types.EventParticipantLeft,
		UserID: sess.participantID,
		Users:  rm.ListParticipants(),
	})
}

func (r *Router) handleJoin(sess *session, intent *types.Intent) {
	roomID := types.NormalizeRoomID(intent.RoomID, r.defaultRoom)
	userID := strings.TrimSpace(intent.UserID)
	if !types.IsValidID(userID, types.MaxUserIDLength) {
		userID = ""
	}

	rm := r.registry.GetOrCreate(roomID)
	r.registry.CancelReclamation(roomID)

	p, replaced := rm.AddParticipant(userID, room.Meta{
		Name:  types.TruncateName(intent.Name),
		Color: strings.TrimSpace(intent.Color),
	}, sess.channel)
	if replaced != nil && replaced != sess.channel {
		closeChannel(replaced)
	}

	sess.state = stateJoined
	sess.room = rm
	sess.participantID = p.ID

	info := p.Info()
	snapshot := rm.Snapshot()
	users := rm.ListParticipants()
	r.send(sess.channel, types.Event{
		Type:         types.EventInit,
		UserID:       p.ID,
		User:         &info,
		Users:        users,
		DrawingState: &snapshot,
	})
	r.broadcast(rm.Recipients(p.ID), types.Event{
		Type:  types.EventParticipantJoined,
		User:  &info,
		Users: users,
	})

	log.Printf("Participant joined: room=%s user=%s participants=%d operations=%d",
		rm.ID(), p.ID, rm.ParticipantCount(), len(snapshot.Operations))
}

func (r *Router) handleDraw(sess *session, intent *types.Intent) error {
	if intent.Data == nil {
		r.replyError(sess, types.ErrMissingStroke.Error())
		return fmt.Errorf("%w: %v", ErrInvalidIntent, types.ErrMissingStroke)
	}
	stroke := *intent.Data
	if err := stroke.Normalize(); err != nil {
		r.replyError(sess, err.Error())
		return fmt.Errorf("%w: %v", ErrInvalidIntent, err)
	}

	op := sess.room.RecordDraw(sess.participantID, stroke)
	// The sender already rendered the stroke locally.
	r.broadcast(sess.room.Recipients(sess.participantID), types.Event{
		Type:      types.EventDraw,
		Operation: &op,
	})
	return nil
}

func (r *Router) handleCursor(sess *session, intent *types.Intent) error {
	if intent.Cursor == nil {
		r.replyError(sess, types.ErrMissingCursor.Error())
		return fmt.Errorf("%w: %v", ErrInvalidIntent, types.ErrMissingCursor)
	}
	point := *intent.Cursor
	if !sess.room.UpdateCursor(sess.participantID, point) {
		return nil
	}
	r.broadcast(sess.room.Recipients(sess.participantID), types.Event{
		Type:   types.EventCursorUpdate,
		UserID: sess.participantID,
		Cursor: &point,
	})
	return nil
}

func (r *Router) handleUndo(sess *session) {
	op, ok := sess.room.Undo()
	if !ok {
		return
	}
	r.broadcastHistory(sess.room, types.EventUndoApplied, op)
}

func (r *Router) handleRedo(sess *session) {
	op, ok := sess.room.Redo()
	if !ok {
		return
	}
	r.broadcastHistory(sess.room, types.EventRedoApplied, op)
}

// broadcastHistory tells everyone, sender included, to resynchronize from the active list.
func (r *Router) broadcastHistory(rm *room.Room, eventType string, op types.Operation) {
	r.broadcast(rm.Recipients(""), types.Event{
		Type:       eventType,
		Operation:  &op,
		Operations: rm.ActiveOperations(),
		CanUndo:    rm.CanUndo(),
		CanRedo:    rm.CanRedo(),
	})
}

func (r *Router) handleClear(sess *session) {
	sess.room.Clear()
	r.broadcast(sess.room.Recipients(""), types.Event{Type: types.EventCleared})
	log.Printf("Room cleared: room=%s by=%s", sess.room.ID(), sess.participantID)
}

// isCurrent reports whether sess still owns its participant entry. A rejoin with
// the same user id on another connection takes the entry over.
func (r *Router) isCurrent(sess *session) bool {
	if sess.room == nil {
		return false
	}
	p, ok := sess.room.Participant(sess.participantID)
	return ok && p.Channel() == sess.channel
}

func (r *Router) replyError(sess *session, message string) {
	if !r.errorLimiter.Allow(sess.connID) {
		return
	}
	r.send(sess.channel, types.Event{Type: types.EventError, Message: message})
}

// send encodes one event for one channel.
func (r *Router) send(ch interfaces.Channel, event types.Event) {
	r.broadcast([]interfaces.Channel{ch}, event)
}

// broadcast encodes once and writes to every open channel. Sends are
// fire-and-forget: closed channels are skipped and failures only logged.
func (r *Router) broadcast(channels []interfaces.Channel, event types.Event) {
	if len(channels) == 0 {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to encode %s event: %v", event.Type, err)
		return
	}
	for _, ch := range channels {
		if ch == nil || !ch.IsOpen() {
			continue
		}
		if err := ch.Send(data); err != nil && !errors.Is(err, interfaces.ErrChannelClosed) {
			log.Printf("Failed to deliver %s event: %v", event.Type, err)
		}
	}
}

func isKnownIntent(intentType string) bool {
	switch intentType {
	case types.IntentDraw, types.IntentCursor, types.IntentUndo, types.IntentRedo, types.IntentClear:
		return true
	default:
		return false
	}
}

// closeChannel closes a superseded transport asynchronously if it supports closing.
func closeChannel(ch interfaces.Channel) {
	closer, ok := ch.(io.Closer)
	if !ok {
		return
	}
	go func() {
		if err := closer.Close(); err != nil {
			log.Printf("Failed to close superseded connection: %v", err)
		}
	}()
}
