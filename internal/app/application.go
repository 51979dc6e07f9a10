package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"whiteboard/internal/api"
	"whiteboard/internal/config"
	"whiteboard/internal/database"
	"whiteboard/internal/hub"
	"whiteboard/internal/room"
	"whiteboard/internal/router"
	"whiteboard/internal/websocket"
	pkgdatabase "whiteboard/pkg/database"
	"whiteboard/pkg/interfaces"
	"whiteboard/pkg/types"
)

// Application coordinates all system components
// Clean dependency injection pattern with proper initialization order
type Application struct {
	config      *config.Config
	archives    interfaces.ArchiveStore
	rooms       *room.Registry
	connections *websocket.Registry
	wsHandler   *websocket.Handler
	messageHub  *hub.Hub
	httpServer  *http.Server
	listener    net.Listener

	// archiveWG tracks in-flight archive writes so Stop can drain them before
	// the store closes.
	archiveWG sync.WaitGroup
}

// NewApplication creates a new application instance with all components initialized
// Component initialization follows strict dependency order:
// Database → Rooms → Router → Hub → WebSocket → API → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	// Validate configuration before component initialization
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	app := &Application{config: cfg}

	// STEP 1: Archive store (optional foundation layer)
	if cfg.Database.ArchiveEnabled {
		dbConfig := pkgdatabase.DefaultConfig()
		dbConfig.DatabasePath = cfg.Database.Path
		dbConfig.ConnMaxLifetime = cfg.Database.Timeout
		dbConfig.ConnMaxIdleTime = cfg.Database.Timeout / 3

		manager, err := database.NewManager(dbConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize database manager: %w", err)
		}
		app.archives = manager
		log.Printf("Room archiving enabled: path=%s", cfg.Database.Path)
	}

	// STEP 2: Room registry. Timer expiry is posted onto the hub loop, which
	// does not exist yet, so the poster resolves it lazily.
	app.rooms = room.NewRegistry(cfg.Room.MaxEntries, cfg.Room.GracePeriod,
		room.WithPoster(func(fn func()) { app.messageHub.Post(fn) }),
		room.WithReclaimHandler(app.archiveRoom),
	)

	// STEP 3: Session router and the hub that serializes it
	messageRouter := router.NewRouter(app.rooms, router.WithDefaultRoom(cfg.Room.DefaultID))
	app.messageHub = hub.NewHub(messageRouter, app.rooms)

	// STEP 4: WebSocket transport
	app.connections = websocket.NewRegistry()
	app.wsHandler = websocket.NewHandler(app.connections, app.messageHub, websocket.Options{
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		BufferSize:   cfg.WebSocket.BufferSize,
	})

	// STEP 5: HTTP surface with API, static assets and WebSocket endpoint
	apiServer := api.NewServer(app.messageHub, app.archives, app.connections, api.Options{
		StaticDir: cfg.HTTP.StaticDir,
		WebSocket: app.wsHandler.HandleWebSocket,
	})

	app.httpServer = &http.Server{
		Addr:         cfg.Address(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return app, nil
}

// archiveRoom runs on the hub loop right after a room is reclaimed. The write
// itself happens off the loop so a slow disk never stalls routing.
func (app *Application) archiveRoom(rm *room.Room) {
	if app.archives == nil {
		return
	}
	operations := rm.ActiveOperations()
	if len(operations) == 0 {
		return
	}

	record := &types.ArchiveRecord{
		ID:             uuid.NewString(),
		RoomID:         rm.ID(),
		CreatedAt:      rm.CreatedAt(),
		ReclaimedAt:    time.Now(),
		OperationCount: len(operations),
		Operations:     operations,
	}

	app.archiveWG.Add(1)
	go func() {
		defer app.archiveWG.Done()
		ctx, cancel := context.WithTimeout(context.Background(), app.config.Database.Timeout)
		defer cancel()
		if err := app.archives.SaveArchive(ctx, record); err != nil {
			log.Printf("Failed to archive room: room=%s err=%v", record.RoomID, err)
			return
		}
		log.Printf("Room archived: room=%s archive=%s operations=%d", record.RoomID, record.ID, record.OperationCount)
	}()
}

// Start begins application execution
// Hub starts first to handle messages, then HTTP server accepts connections
func (app *Application) Start(ctx context.Context) error {
	log.Printf("Starting whiteboard server on %s", app.httpServer.Addr)

	if err := ctx.Err(); err != nil {
		return err
	}

	// STEP 1: Start message hub (background message processing). Its lifetime
	// ends in Stop, after the sockets have drained into it, not when ctx ends.
	if err := app.messageHub.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("failed to start message hub: %w", err)
	}

	// STEP 2: Bind before returning so callers see bind errors synchronously
	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.messageHub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener

	// STEP 3: Serve HTTP (accepts connections)
	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	log.Printf("Whiteboard server listening on %s", listener.Addr())
	return nil
}

// Stop gracefully shuts down the application
// Reverse dependency order: HTTP → WebSocket → Hub → Database
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down whiteboard server")

	// STEP 1: Stop accepting new connections
	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	// STEP 2: Close live sockets; each close flows through the router
	closed := app.wsHandler.Shutdown()
	log.Printf("Closed %d WebSocket connections", closed)

	// STEP 3: Stop message processing
	if err := app.messageHub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		log.Printf("Message hub shutdown error: %v", err)
	}

	// STEP 4: Drain archive writes, then close the store
	if app.archives != nil {
		app.archiveWG.Wait()
		if err := app.archives.Close(); err != nil {
			log.Printf("Database shutdown error: %v", err)
		}
	}

	log.Printf("Whiteboard server shutdown complete")
	return nil
}

// GetAddr returns the bound address once started, the configured one before.
func (app *Application) GetAddr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Archives exposes the archive store, nil when archiving is disabled.
func (app *Application) Archives() interfaces.ArchiveStore {
	return app.archives
}
