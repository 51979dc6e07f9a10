package types

import (
	"encoding/json"
	"time"
)

// Inbound intent types sent by clients.
const (
	IntentJoin   = "join"
	IntentDraw   = "draw"
	IntentCursor = "cursor"
	IntentUndo   = "undo"
	IntentRedo   = "redo"
	IntentClear  = "clear"
)

// Outbound event types sent by the server.
const (
	EventInit              = "init"
	EventParticipantJoined = "participant_joined"
	EventParticipantLeft   = "participant_left"
	EventDraw              = "draw"
	EventCursorUpdate      = "cursor_update"
	EventUndoApplied       = "undo_applied"
	EventRedoApplied       = "redo_applied"
	EventCleared           = "cleared"
	EventError             = "error"
)

// Drawing tools accepted in a stroke payload.
const (
	ToolBrush  = "brush"
	ToolEraser = "eraser"
)

// OperationKindDraw is the only kind that is ever appended to a log.
// Clearing is modeled as a log reset, not as an operation.
const OperationKindDraw = "draw"

// DefaultRoomID is used when a join intent omits roomId.
const DefaultRoomID = "default"

// Point is a 2-D canvas coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Stroke is one complete freehand stroke, sent once on pointer-up.
type Stroke struct {
	Tool   string  `json:"tool"`
	Color  string  `json:"color"`
	Width  float64 `json:"width"`
	Points []Point `json:"points"`
}

// OperationDraft is what a producer hands to the log; the log assigns ID and CreatedAt.
type OperationDraft struct {
	Kind     string
	AuthorID string
	Payload  Stroke
}

// Operation is an immutable record once appended to an operation log.
// CreatedAt is informational only: arrival order at the log is the total order.
type Operation struct {
	ID        string `json:"id"`
	Kind      string `json:"type"`
	AuthorID  string `json:"userId"`
	CreatedAt int64  `json:"timestamp"` // unix milliseconds
	Payload   Stroke `json:"data"`
}

// CreatedTime returns CreatedAt as a time.Time.
func (o Operation) CreatedTime() time.Time {
	return time.UnixMilli(o.CreatedAt)
}

// DrawingState bootstraps a newly joined participant.
type DrawingState struct {
	Operations   []Operation `json:"operations"`
	CurrentIndex int         `json:"currentIndex"`
}

// ParticipantInfo is the roster view of a participant. It never carries the transport.
type ParticipantInfo struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Color  string `json:"color"`
	Cursor Point  `json:"cursor"`
}

// Intent is the decoded envelope of an inbound client message.
// Only the fields relevant to Type are populated.
type Intent struct {
	Type   string  `json:"type"`
	UserID string  `json:"userId,omitempty"`
	RoomID string  `json:"roomId,omitempty"`
	Name   string  `json:"name,omitempty"`
	Color  string  `json:"color,omitempty"`
	Data   *Stroke `json:"data,omitempty"`
	Cursor *Point  `json:"cursor,omitempty"`
}

// Event is an outbound server message. Fields are omitted when not part of the event.
type Event struct {
	Type         string            `json:"type"`
	UserID       string            `json:"userId,omitempty"`
	User         *ParticipantInfo  `json:"user,omitempty"`
	Users        []ParticipantInfo `json:"users,omitempty"`
	DrawingState *DrawingState     `json:"drawingState,omitempty"`
	Operation    *Operation        `json:"operation,omitempty"`
	Operations   []Operation       `json:"-"`
	Cursor       *Point            `json:"cursor,omitempty"`
	CanUndo      bool              `json:"-"`
	CanRedo      bool              `json:"-"`
	Message      string            `json:"message,omitempty"`
}

// historyEvent keeps operations and affordance flags present even when empty or false.
type historyEvent struct {
	Type       string      `json:"type"`
	Operation  *Operation  `json:"operation"`
	Operations []Operation `json:"operations"`
	CanUndo    bool        `json:"canUndo"`
	CanRedo    bool        `json:"canRedo"`
}

// MarshalJSON encodes undo/redo events with all of their fields, and everything
// else with the sparse Event layout.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Type == EventUndoApplied || e.Type == EventRedoApplied {
		h := historyEvent{
			Type:       e.Type,
			Operation:  e.Operation,
			Operations: e.Operations,
			CanUndo:    e.CanUndo,
			CanRedo:    e.CanRedo,
		}
		if h.Operations == nil {
			h.Operations = []Operation{}
		}
		return json.Marshal(h)
	}
	type sparse Event
	return json.Marshal(sparse(e))
}

// RoomStats is the aggregate view used by health reporting.
type RoomStats struct {
	RoomCount        int `json:"rooms"`
	ParticipantCount int `json:"participants"`
}

// RoomSummary describes one live room for the listing endpoint.
type RoomSummary struct {
	ID               string    `json:"id"`
	ParticipantCount int       `json:"participantCount"`
	OperationCount   int       `json:"operationCount"`
	CreatedAt        time.Time `json:"createdAt"`
}

// ArchiveRecord is the final active drawing of a reclaimed room.
type ArchiveRecord struct {
	ID             string      `json:"id"`
	RoomID         string      `json:"roomId"`
	CreatedAt      time.Time   `json:"createdAt"`
	ReclaimedAt    time.Time   `json:"reclaimedAt"`
	OperationCount int         `json:"operationCount"`
	Operations     []Operation `json:"operations,omitempty"`
}
