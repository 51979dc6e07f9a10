package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"whiteboard/internal/hub"
	"whiteboard/internal/room"
	"whiteboard/internal/router"
	"whiteboard/pkg/types"
)

type wireEvent struct {
	Type         string                  `json:"type"`
	UserID       string                  `json:"userId"`
	Users        []types.ParticipantInfo `json:"users"`
	DrawingState *types.DrawingState     `json:"drawingState"`
	Operation    *types.Operation        `json:"operation"`
	Operations   []types.Operation       `json:"operations"`
	CanUndo      bool                    `json:"canUndo"`
	CanRedo      bool                    `json:"canRedo"`
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func (c *client) send(raw string) {
	c.t.Helper()
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		c.t.Fatalf("write failed: %v", err)
	}
}

// expect reads events until one of the wanted type arrives.
func (c *client) expect(eventType string) wireEvent {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.t.Fatalf("waiting for %s: %v", eventType, err)
		}
		var ev wireEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			c.t.Fatalf("bad frame %s: %v", data, err)
		}
		if ev.Type == eventType {
			return ev
		}
	}
}

func startWhiteboard(t *testing.T) (string, *hub.Hub) {
	t.Helper()
	var h *hub.Hub
	registry := room.NewRegistry(1000, time.Minute,
		room.WithPoster(func(f func()) { h.Post(f) }),
	)
	h = hub.NewHub(router.NewRouter(registry), registry)
	if err := h.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	handler := NewHandler(NewRegistry(), h, Options{})
	server := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))
	t.Cleanup(func() {
		server.Close()
		handler.Shutdown()
		_ = h.Stop()
	})
	return "ws" + strings.TrimPrefix(server.URL, "http"), h
}

func connectClient(t *testing.T, url, userID, roomID string) (*client, wireEvent) {
	t.Helper()
	c := &client{t: t, conn: dial(t, url)}
	c.send(fmt.Sprintf(`{"type":"join","userId":%q,"roomId":%q}`, userID, roomID))
	return c, c.expect(types.EventInit)
}

// Integration: two participants draw, undo and redo through the real hub.
func TestIntegration_DrawUndoRedo(t *testing.T) {
	url, h := startWhiteboard(t)

	alice, _ := connectClient(t, url, "alice", "board")
	bob, bobInit := connectClient(t, url, "bob", "board")
	if len(bobInit.Users) != 2 {
		t.Errorf("bob init users = %d, want 2", len(bobInit.Users))
	}
	alice.expect(types.EventParticipantJoined)

	alice.send(`{"type":"draw","data":{"tool":"brush","color":"#123456","width":3,"points":[{"x":1,"y":1},{"x":5,"y":5}]}}`)
	draw := bob.expect(types.EventDraw)
	if draw.Operation == nil || draw.Operation.AuthorID != "alice" || draw.Operation.Payload.Color != "#123456" {
		t.Fatalf("draw = %+v", draw.Operation)
	}

	bob.send(`{"type":"undo"}`)
	for _, c := range []*client{alice, bob} {
		ev := c.expect(types.EventUndoApplied)
		if ev.Operation.ID != draw.Operation.ID || len(ev.Operations) != 0 || ev.CanUndo || !ev.CanRedo {
			t.Errorf("undo_applied = %+v", ev)
		}
	}

	alice.send(`{"type":"redo"}`)
	for _, c := range []*client{alice, bob} {
		ev := c.expect(types.EventRedoApplied)
		if len(ev.Operations) != 1 || !ev.CanUndo || ev.CanRedo {
			t.Errorf("redo_applied = %+v", ev)
		}
	}

	stats, err := h.Stats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stats.RoomCount != 1 || stats.ParticipantCount != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

// Integration: a late joiner bootstraps from the snapshot and departures are announced.
func TestIntegration_LateJoinAndLeave(t *testing.T) {
	url, _ := startWhiteboard(t)

	alice, _ := connectClient(t, url, "alice", "board")
	for i := 0; i < 3; i++ {
		alice.send(`{"type":"draw","data":{"points":[{"x":1,"y":1}]}}`)
	}
	alice.send(`{"type":"undo"}`)
	alice.expect(types.EventUndoApplied)

	bob, init := connectClient(t, url, "bob", "board")
	if init.DrawingState == nil || len(init.DrawingState.Operations) != 2 || init.DrawingState.CurrentIndex != 1 {
		t.Errorf("late join snapshot = %+v", init.DrawingState)
	}

	bob.conn.Close()
	left := alice.expect(types.EventParticipantLeft)
	if left.UserID != "bob" || len(left.Users) != 1 {
		t.Errorf("participant_left = %+v", left)
	}
}
