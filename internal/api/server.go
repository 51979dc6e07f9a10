package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"whiteboard/pkg/interfaces"
	"whiteboard/pkg/types"
)

// RoomSource answers live-room queries. The hub implements it.
type RoomSource interface {
	Stats(ctx context.Context) (types.RoomStats, error)
	Rooms(ctx context.Context) ([]types.RoomSummary, error)
}

// ConnectionCounter reports live transport connections.
type ConnectionCounter interface {
	Count() int
}

// ARCHITECTURAL DISCOVERY: HTTP API layer serves as pure interface between external clients and internal components
// Clean separation - no business logic, only HTTP handling and JSON serialization
type Server struct {
	rooms       RoomSource
	archives    interfaces.ArchiveStore
	connections ConnectionCounter
	router      *mux.Router
}

// Options configures the optional parts of the HTTP surface.
type Options struct {
	// StaticDir is served at "/" when non-empty.
	StaticDir string
	// WebSocket handles "/ws" when non-nil.
	WebSocket http.HandlerFunc
}

// NewServer wires the routes. archives may be nil when archiving is disabled.
func NewServer(rooms RoomSource, archives interfaces.ArchiveStore, connections ConnectionCounter, opts Options) *Server {
	s := &Server{
		rooms:       rooms,
		archives:    archives,
		connections: connections,
		router:      mux.NewRouter(),
	}

	s.setupRoutes(opts)
	return s
}

// ARCHITECTURAL DISCOVERY: Access logging wraps every route including the websocket
// upgrade; CORS and JSON headers only apply to the API subrouter.
func (s *Server) setupRoutes(opts Options) {
	s.router.Use(accessLogMiddleware)

	if opts.WebSocket != nil {
		s.router.Methods(http.MethodGet).Path("/ws").HandlerFunc(opts.WebSocket)
	}

	s.router.Handle("/health", corsMiddleware(jsonMiddleware(http.HandlerFunc(s.healthCheck)))).
		Methods(http.MethodGet, http.MethodOptions)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware, jsonMiddleware)
	api.Methods(http.MethodGet, http.MethodOptions).Path("/rooms").HandlerFunc(s.listRooms)
	api.Methods(http.MethodGet, http.MethodOptions).Path("/archives").HandlerFunc(s.listArchives)
	api.Methods(http.MethodGet, http.MethodOptions).Path("/archives/{id}").HandlerFunc(s.getArchive)
	api.NotFoundHandler = jsonMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, "Endpoint not found", http.StatusNotFound)
	}))
	api.MethodNotAllowedHandler = jsonMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sendError(w, "Method not allowed", http.StatusMethodNotAllowed)
	}))

	if opts.StaticDir != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(opts.StaticDir)))
	}
}

// FUNCTIONAL DISCOVERY: Implement http.Handler interface for integration with standard HTTP server
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

type RoomsResponse struct {
	Rooms []types.RoomSummary `json:"rooms"`
}

type ArchivesResponse struct {
	Archives []*types.ArchiveRecord `json:"archives"`
}

type ArchiveResponse struct {
	Archive *types.ArchiveRecord `json:"archive"`
}

type HealthResponse struct {
	Status       string    `json:"status"`
	Timestamp    time.Time `json:"timestamp"`
	Rooms        int       `json:"rooms"`
	Participants int       `json:"participants"`
	Connections  int       `json:"connections"`
	Database     string    `json:"database"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// FUNCTIONAL DISCOVERY: GET /api/rooms - Live rooms sorted by id, read on the hub loop
func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.rooms.Rooms(r.Context())
	if err != nil {
		log.Printf("Failed to list rooms: %v", err)
		sendError(w, "Failed to list rooms", http.StatusServiceUnavailable)
		return
	}
	if rooms == nil {
		rooms = []types.RoomSummary{}
	}
	writeJSON(w, http.StatusOK, RoomsResponse{Rooms: rooms})
}

// FUNCTIONAL DISCOVERY: GET /api/archives?room=&limit= - Archive summaries, newest first
func (s *Server) listArchives(w http.ResponseWriter, r *http.Request) {
	if s.archives == nil {
		sendError(w, "Archiving is disabled", http.StatusNotFound)
		return
	}

	query := r.URL.Query()
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			sendError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	roomID := strings.TrimSpace(query.Get("room"))

	records, err := s.archives.ListArchives(r.Context(), roomID, limit)
	if err != nil {
		log.Printf("Failed to list archives: room=%s err=%v", roomID, err)
		sendError(w, "Failed to list archives", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []*types.ArchiveRecord{}
	}
	writeJSON(w, http.StatusOK, ArchivesResponse{Archives: records})
}

// FUNCTIONAL DISCOVERY: GET /api/archives/{id} - One archive including its operations
func (s *Server) getArchive(w http.ResponseWriter, r *http.Request) {
	if s.archives == nil {
		sendError(w, "Archiving is disabled", http.StatusNotFound)
		return
	}

	archiveID := mux.Vars(r)["id"]
	record, err := s.archives.GetArchive(r.Context(), archiveID)
	if err != nil {
		if errors.Is(err, interfaces.ErrArchiveNotFound) {
			sendError(w, "Archive not found", http.StatusNotFound)
			return
		}
		log.Printf("Failed to get archive: id=%s err=%v", archiveID, err)
		sendError(w, "Failed to get archive", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, ArchiveResponse{Archive: record})
}

// FUNCTIONAL DISCOVERY: GET /health - System health check with component validation
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Database:  "disabled",
	}

	stats, err := s.rooms.Stats(ctx)
	if err != nil {
		response.Status = "unhealthy"
	}
	response.Rooms = stats.RoomCount
	response.Participants = stats.ParticipantCount
	if s.connections != nil {
		response.Connections = s.connections.Count()
	}

	if s.archives != nil {
		response.Database = "healthy"
		if err := s.archives.HealthCheck(ctx); err != nil {
			response.Status = "unhealthy"
			response.Database = fmt.Sprintf("error: %v", err)
		}
	}

	// FUNCTIONAL DISCOVERY: Return 503 if any component is unhealthy
	code := http.StatusOK
	if response.Status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, response)
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

// FUNCTIONAL DISCOVERY: Consistent error response format
func sendError(w http.ResponseWriter, message string, code int) {
	writeJSON(w, code, ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// accessLogMiddleware logs one line per request once the handler returns.
func accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		log.Printf("HTTP %s %s: status=%d duration=%s bytes=%d", r.Method, r.URL.Path, m.Code, m.Duration, m.Written)
	})
}

// ARCHITECTURAL DISCOVERY: CORS middleware enables web client access
// The API is read-only, so only GET and OPTIONS are advertised.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// FUNCTIONAL DISCOVERY: JSON middleware ensures proper content-type headers
func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
