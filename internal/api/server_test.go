package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"whiteboard/pkg/interfaces"
	"whiteboard/pkg/types"
)

type mockRoomSource struct {
	stats types.RoomStats
	rooms []types.RoomSummary
	err   error
}

func (m *mockRoomSource) Stats(ctx context.Context) (types.RoomStats, error) {
	return m.stats, m.err
}

func (m *mockRoomSource) Rooms(ctx context.Context) ([]types.RoomSummary, error) {
	return m.rooms, m.err
}

type mockArchiveStore struct {
	records   map[string]*types.ArchiveRecord
	healthErr error
	listErr   error

	lastRoom  string
	lastLimit int
}

func newMockArchiveStore() *mockArchiveStore {
	return &mockArchiveStore{records: make(map[string]*types.ArchiveRecord)}
}

func (m *mockArchiveStore) SaveArchive(ctx context.Context, record *types.ArchiveRecord) error {
	m.records[record.ID] = record
	return nil
}

func (m *mockArchiveStore) ListArchives(ctx context.Context, roomID string, limit int) ([]*types.ArchiveRecord, error) {
	m.lastRoom, m.lastLimit = roomID, limit
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*types.ArchiveRecord
	for _, r := range m.records {
		if roomID == "" || r.RoomID == roomID {
			summary := *r
			summary.Operations = nil
			out = append(out, &summary)
		}
	}
	return out, nil
}

func (m *mockArchiveStore) GetArchive(ctx context.Context, archiveID string) (*types.ArchiveRecord, error) {
	r, ok := m.records[archiveID]
	if !ok {
		return nil, interfaces.ErrArchiveNotFound
	}
	return r, nil
}

func (m *mockArchiveStore) HealthCheck(ctx context.Context) error { return m.healthErr }

func (m *mockArchiveStore) Close() error { return nil }

type fixedCounter int

func (c fixedCounter) Count() int { return int(c) }

func sampleArchive(id, roomID string) *types.ArchiveRecord {
	return &types.ArchiveRecord{
		ID:             id,
		RoomID:         roomID,
		CreatedAt:      time.Now().Add(-time.Hour).UTC(),
		ReclaimedAt:    time.Now().UTC(),
		OperationCount: 1,
		Operations: []types.Operation{{
			ID:       "op-1",
			Kind:     types.OperationKindDraw,
			AuthorID: "u1",
			Payload:  types.Stroke{Tool: types.ToolBrush, Color: "#000000", Width: 2, Points: []types.Point{{X: 1, Y: 1}}},
		}},
	}
}

func serve(t *testing.T, s *Server, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(into); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
}

// ARCHITECTURAL VALIDATION TEST: Interface compliance
func TestServer_ArchitecturalCompliance(t *testing.T) {
	var _ http.Handler = (*Server)(nil)
	var _ interfaces.ArchiveStore = (*mockArchiveStore)(nil)
}

// FUNCTIONAL VALIDATION TEST: GET /health endpoint
func TestServer_HealthCheck(t *testing.T) {
	rooms := &mockRoomSource{stats: types.RoomStats{RoomCount: 2, ParticipantCount: 5}}
	server := NewServer(rooms, newMockArchiveStore(), fixedCounter(6), Options{})

	w := serve(t, server, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var health HealthResponse
	decode(t, w, &health)
	if health.Status != "healthy" || health.Database != "healthy" {
		t.Errorf("status=%s database=%s", health.Status, health.Database)
	}
	if health.Rooms != 2 || health.Participants != 5 || health.Connections != 6 {
		t.Errorf("counts = %+v", health)
	}
	if health.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
}

// FUNCTIONAL VALIDATION TEST: Health check fails over to 503 on broken components
func TestServer_HealthCheckValidation(t *testing.T) {
	t.Run("database failure", func(t *testing.T) {
		store := newMockArchiveStore()
		store.healthErr = errors.New("disk gone")
		server := NewServer(&mockRoomSource{}, store, fixedCounter(0), Options{})

		w := serve(t, server, http.MethodGet, "/health")
		if w.Code != http.StatusServiceUnavailable {
			t.Fatalf("Expected 503, got %d", w.Code)
		}
		var health HealthResponse
		decode(t, w, &health)
		if health.Status != "unhealthy" || !strings.Contains(health.Database, "disk gone") {
			t.Errorf("health = %+v", health)
		}
	})

	t.Run("hub unavailable", func(t *testing.T) {
		server := NewServer(&mockRoomSource{err: errors.New("hub not running")}, nil, nil, Options{})
		if w := serve(t, server, http.MethodGet, "/health"); w.Code != http.StatusServiceUnavailable {
			t.Errorf("Expected 503, got %d", w.Code)
		}
	})

	t.Run("archiving disabled", func(t *testing.T) {
		server := NewServer(&mockRoomSource{}, nil, nil, Options{})
		w := serve(t, server, http.MethodGet, "/health")
		if w.Code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", w.Code)
		}
		var health HealthResponse
		decode(t, w, &health)
		if health.Database != "disabled" {
			t.Errorf("database = %s", health.Database)
		}
	})
}

func TestServer_ListRooms(t *testing.T) {
	created := time.Now().UTC().Truncate(time.Second)
	rooms := &mockRoomSource{rooms: []types.RoomSummary{
		{ID: "alpha", ParticipantCount: 1, OperationCount: 3, CreatedAt: created},
		{ID: "beta", ParticipantCount: 0, OperationCount: 0, CreatedAt: created},
	}}
	server := NewServer(rooms, nil, nil, Options{})

	w := serve(t, server, http.MethodGet, "/api/rooms")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var resp RoomsResponse
	decode(t, w, &resp)
	if len(resp.Rooms) != 2 || resp.Rooms[0].ID != "alpha" || resp.Rooms[0].OperationCount != 3 {
		t.Errorf("rooms = %+v", resp.Rooms)
	}

	empty := NewServer(&mockRoomSource{}, nil, nil, Options{})
	w = serve(t, empty, http.MethodGet, "/api/rooms")
	if !strings.Contains(w.Body.String(), `"rooms":[]`) {
		t.Errorf("no rooms should encode as an empty list, got %s", w.Body.String())
	}
}

func TestServer_ListArchives(t *testing.T) {
	store := newMockArchiveStore()
	store.records["a1"] = sampleArchive("a1", "alpha")
	store.records["b1"] = sampleArchive("b1", "beta")
	server := NewServer(&mockRoomSource{}, store, nil, Options{})

	w := serve(t, server, http.MethodGet, "/api/archives?room=alpha&limit=10")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if store.lastRoom != "alpha" || store.lastLimit != 10 {
		t.Errorf("store called with room=%q limit=%d", store.lastRoom, store.lastLimit)
	}
	var resp ArchivesResponse
	decode(t, w, &resp)
	if len(resp.Archives) != 1 || resp.Archives[0].ID != "a1" || len(resp.Archives[0].Operations) != 0 {
		t.Errorf("archives = %+v", resp.Archives)
	}

	// Limit validation and clamping belong to the store; the handler only rejects garbage.
	if w := serve(t, server, http.MethodGet, "/api/archives?limit=abc"); w.Code != http.StatusBadRequest {
		t.Errorf("non-numeric limit: expected 400, got %d", w.Code)
	}
	if w := serve(t, server, http.MethodGet, "/api/archives?limit=-1"); w.Code != http.StatusBadRequest {
		t.Errorf("negative limit: expected 400, got %d", w.Code)
	}

	serve(t, server, http.MethodGet, "/api/archives")
	if store.lastRoom != "" || store.lastLimit != 0 {
		t.Errorf("defaults passed as room=%q limit=%d", store.lastRoom, store.lastLimit)
	}

	store.listErr = errors.New("boom")
	if w := serve(t, server, http.MethodGet, "/api/archives"); w.Code != http.StatusInternalServerError {
		t.Errorf("store failure: expected 500, got %d", w.Code)
	}
}

func TestServer_GetArchive(t *testing.T) {
	store := newMockArchiveStore()
	store.records["a1"] = sampleArchive("a1", "alpha")
	server := NewServer(&mockRoomSource{}, store, nil, Options{})

	w := serve(t, server, http.MethodGet, "/api/archives/a1")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var resp ArchiveResponse
	decode(t, w, &resp)
	if resp.Archive == nil || resp.Archive.RoomID != "alpha" || len(resp.Archive.Operations) != 1 {
		t.Errorf("archive = %+v", resp.Archive)
	}

	w = serve(t, server, http.MethodGet, "/api/archives/missing")
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", w.Code)
	}
	var errResp ErrorResponse
	decode(t, w, &errResp)
	if errResp.Code != http.StatusNotFound || errResp.Message != "Archive not found" {
		t.Errorf("error response = %+v", errResp)
	}
}

func TestServer_ArchivesDisabled(t *testing.T) {
	server := NewServer(&mockRoomSource{}, nil, nil, Options{})

	for _, target := range []string{"/api/archives", "/api/archives/a1"} {
		if w := serve(t, server, http.MethodGet, target); w.Code != http.StatusNotFound {
			t.Errorf("%s: expected 404 with archiving disabled, got %d", target, w.Code)
		}
	}
}

// FUNCTIONAL VALIDATION TEST: CORS headers and preflight
func TestServer_CORSMiddleware(t *testing.T) {
	server := NewServer(&mockRoomSource{}, nil, nil, Options{})

	w := serve(t, server, http.MethodOptions, "/api/rooms")
	if w.Code != http.StatusOK {
		t.Errorf("preflight: expected 200, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing Access-Control-Allow-Origin")
	}

	w = serve(t, server, http.MethodGet, "/api/rooms")
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("GET responses should carry CORS headers")
	}
}

// FUNCTIONAL VALIDATION TEST: Error handling for unknown paths and methods
func TestServer_ErrorHandling(t *testing.T) {
	server := NewServer(&mockRoomSource{}, nil, nil, Options{})

	w := serve(t, server, http.MethodGet, "/api/nope")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown endpoint: expected 404, got %d", w.Code)
	}
	var errResp ErrorResponse
	decode(t, w, &errResp)
	if errResp.Error != "Not Found" {
		t.Errorf("error = %+v", errResp)
	}

	if w := serve(t, server, http.MethodDelete, "/api/rooms"); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE: expected 405, got %d", w.Code)
	}
}

func TestServer_StaticAndWebSocketRoutes(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<canvas></canvas>"), 0o644); err != nil {
		t.Fatal(err)
	}

	wsCalled := false
	server := NewServer(&mockRoomSource{}, nil, nil, Options{
		StaticDir: dir,
		WebSocket: func(w http.ResponseWriter, r *http.Request) {
			wsCalled = true
			w.WriteHeader(http.StatusSwitchingProtocols)
		},
	})

	w := serve(t, server, http.MethodGet, "/")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "<canvas>") {
		t.Errorf("static index: code=%d body=%q", w.Code, w.Body.String())
	}

	serve(t, server, http.MethodGet, "/ws")
	if !wsCalled {
		t.Error("/ws should reach the websocket handler")
	}

	// API routes take priority over the static catch-all.
	if w := serve(t, server, http.MethodGet, "/api/rooms"); w.Header().Get("Content-Type") != "application/json" {
		t.Errorf("/api/rooms served by static handler: %q", w.Body.String())
	}
}

// FUNCTIONAL VALIDATION TEST: Health check honors request cancellation
func TestServer_TimeoutHandling(t *testing.T) {
	server := NewServer(&mockRoomSource{err: context.DeadlineExceeded}, nil, nil, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/health", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		server.ServeHTTP(w, req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("health check did not return")
	}
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
}
