// Package oplog holds the linear, globally ordered drawing history of one room.
//
// The history is a window over a fixed-capacity ring: entries are stored
// oldest-first starting at head, size entries are retained and the first
// active of them are visible on the canvas. Everything in [active, size) is
// the redo tail. The cursor exposed to callers is active-1.
package oplog

import (
	"time"

	"github.com/google/uuid"

	"whiteboard/pkg/types"
)

// DefaultMaxEntries is the retention cap used when none is configured.
const DefaultMaxEntries = 1000

// Log is not safe for concurrent use. It is owned by the goroutine that owns its room.
type Log struct {
	buf    []types.Operation
	head   int // index in buf of the oldest retained entry
	size   int // retained entries
	active int // entries[0:active] are visible

	newID func() string
	now   func() time.Time
}

// Option configures a Log.
type Option func(*Log)

// WithIDGenerator replaces the operation id source.
func WithIDGenerator(gen func() string) Option {
	return func(l *Log) { l.newID = gen }
}

// WithClock replaces the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// New creates an empty log holding at most maxEntries operations.
// A non-positive maxEntries falls back to DefaultMaxEntries.
func New(maxEntries int, opts ...Option) *Log {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	l := &Log{
		buf:   make([]types.Operation, maxEntries),
		newID: newOperationID,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// newOperationID returns a UUIDv7, which sorts in generation order.
func newOperationID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}

// Append stores a new operation and makes it the newest active entry.
// Any redo tail is discarded first. When the cap is reached the oldest
// entry is evicted. Append never fails.
func (l *Log) Append(draft types.OperationDraft) types.Operation {
	kind := draft.Kind
	if kind == "" {
		kind = types.OperationKindDraw
	}
	op := types.Operation{
		ID:        l.newID(),
		Kind:      kind,
		AuthorID:  draft.AuthorID,
		CreatedAt: l.now().UnixMilli(),
		Payload:   draft.Payload,
	}

	l.truncateTail()
	if l.size == len(l.buf) {
		l.evictOldest()
	}

	l.buf[l.index(l.size)] = op
	l.size++
	l.active = l.size
	return op
}

// truncateTail drops every redo-reachable entry.
func (l *Log) truncateTail() {
	for i := l.active; i < l.size; i++ {
		l.buf[l.index(i)] = types.Operation{}
	}
	l.size = l.active
}

// evictOldest drops the entry at head. The active set is a prefix, so the
// evicted entry is active whenever any entry is; the cursor moves with it
// and keeps pointing at the same logical operation.
func (l *Log) evictOldest() {
	if l.size == 0 {
		return
	}
	l.buf[l.head] = types.Operation{}
	l.head = (l.head + 1) % len(l.buf)
	l.size--
	if l.active > 0 {
		l.active--
	}
}

// Undo deactivates the newest active operation and returns it.
// ok is false when nothing is active.
func (l *Log) Undo() (op types.Operation, ok bool) {
	if l.active == 0 {
		return types.Operation{}, false
	}
	l.active--
	return l.at(l.active), true
}

// Redo reactivates the oldest entry of the redo tail and returns it.
// ok is false when the tail is empty.
func (l *Log) Redo() (op types.Operation, ok bool) {
	if l.active >= l.size {
		return types.Operation{}, false
	}
	op = l.at(l.active)
	l.active++
	return op, true
}

// CanUndo agrees with whether Undo would return an operation right now.
func (l *Log) CanUndo() bool { return l.active > 0 }

// CanRedo agrees with whether Redo would return an operation right now.
func (l *Log) CanRedo() bool { return l.active < l.size }

// ActiveOperations returns a copy of the visible operations, oldest first.
// The result is never nil.
func (l *Log) ActiveOperations() []types.Operation {
	ops := make([]types.Operation, l.active)
	for i := range ops {
		ops[i] = l.at(i)
	}
	return ops
}

// Snapshot returns the state a newly joined participant needs.
func (l *Log) Snapshot() types.DrawingState {
	return types.DrawingState{
		Operations:   l.ActiveOperations(),
		CurrentIndex: l.Cursor(),
	}
}

// Reset empties the log. Nothing is kept for redo.
func (l *Log) Reset() {
	for i := 0; i < l.size; i++ {
		l.buf[l.index(i)] = types.Operation{}
	}
	l.head, l.size, l.active = 0, 0, 0
}

// Cursor is the index of the newest active entry, -1 when none is active.
func (l *Log) Cursor() int { return l.active - 1 }

// Len is the number of retained entries, active and redo-reachable.
func (l *Log) Len() int { return l.size }

// Capacity is the retention cap.
func (l *Log) Capacity() int { return len(l.buf) }

// Entries returns a copy of every retained entry, oldest first.
func (l *Log) Entries() []types.Operation {
	ops := make([]types.Operation, l.size)
	for i := range ops {
		ops[i] = l.at(i)
	}
	return ops
}

func (l *Log) index(logical int) int {
	return (l.head + logical) % len(l.buf)
}

func (l *Log) at(logical int) types.Operation {
	return l.buf[l.index(logical)]
}
