package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	// ARCHITECTURAL DISCOVERY: Import SQLite driver but only reference in connection string
	_ "github.com/mattn/go-sqlite3"
	dbconfig "whiteboard/pkg/database"
	"whiteboard/pkg/interfaces"
	"whiteboard/pkg/types"
)

// Listing bounds for ListArchives.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

var (
	ErrManagerClosed = errors.New("database manager is closed")
	ErrWriteTimeout  = errors.New("write operation timeout")
)

// Manager implements interfaces.ArchiveStore on sqlite.
type Manager struct {
	db           *sql.DB
	config       *dbconfig.Config
	writeChannel chan writeOperation // TECHNICAL: Single-writer pattern for SQLite
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex // TECHNICAL: Protect closed status
	retryDelay   time.Duration
}

// writeOperation represents a database write operation
type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// NewManager opens the database, applies migrations and starts the writer.
func NewManager(config *dbconfig.Config) (*Manager, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}

	db, err := sql.Open("sqlite3", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	migrations := dbconfig.NewMigrationManager(db)
	if err := migrations.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := migrations.ValidateSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("database schema invalid: %w", err)
	}

	manager := &Manager{
		db:           db,
		config:       config,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
		retryDelay:   5 * time.Second,
	}

	// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write contention
	manager.wg.Add(1)
	go manager.writeLoop()

	return manager, nil
}

// writeLoop processes all write operations in a single goroutine
func (m *Manager) writeLoop() {
	defer m.wg.Done()

	for {
		select {
		case op := <-m.writeChannel:
			// FUNCTIONAL DISCOVERY: Retry exactly once after a pause
			err := op.operation(m.db)
			if err != nil {
				log.Printf("Database write failed, retrying in %s: %v", m.retryDelay, err)
				time.Sleep(m.retryDelay)
				err = op.operation(m.db)
				if err != nil {
					log.Printf("Database write failed after retry: %v", err)
				}
			}
			op.result <- err

		case <-m.shutdown:
			log.Println("Database write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (m *Manager) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrManagerClosed
	}
	m.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case m.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-time.After(30 * time.Second):
		return ErrWriteTimeout
	case <-m.shutdown:
		return ErrManagerClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-result:
		return err
	case <-m.shutdown:
		return ErrManagerClosed
	}
}

// SaveArchive stores the final drawing of a reclaimed room.
func (m *Manager) SaveArchive(ctx context.Context, record *types.ArchiveRecord) error {
	if record == nil {
		return errors.New("archive record cannot be nil")
	}

	operations := record.Operations
	if operations == nil {
		operations = []types.Operation{}
	}
	// TECHNICAL DISCOVERY: JSON serialization keeps operations in their wire shape
	operationsJSON, err := json.Marshal(operations)
	if err != nil {
		return fmt.Errorf("failed to marshal operations: %w", err)
	}

	return m.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO archives (id, room_id, created_at, reclaimed_at, operation_count, operations)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			record.ID,
			record.RoomID,
			record.CreatedAt.UTC(),
			record.ReclaimedAt.UTC(),
			len(operations),
			string(operationsJSON),
		)
		if err != nil {
			return fmt.Errorf("failed to insert archive: %w", err)
		}
		return nil
	})
}

// ListArchives returns archive summaries newest first. Operations are not loaded.
func (m *Manager) ListArchives(ctx context.Context, roomID string, limit int) ([]*types.ArchiveRecord, error) {
	limit = ClampLimit(limit)

	// ARCHITECTURAL DISCOVERY: Read operations can be concurrent - no need for writeChannel
	query := `
		SELECT id, room_id, created_at, reclaimed_at, operation_count
		FROM archives
		ORDER BY reclaimed_at DESC, id DESC
		LIMIT ?
	`
	args := []interface{}{limit}
	if roomID != "" {
		query = `
			SELECT id, room_id, created_at, reclaimed_at, operation_count
			FROM archives
			WHERE room_id = ?
			ORDER BY reclaimed_at DESC, id DESC
			LIMIT ?
		`
		args = []interface{}{roomID, limit}
	}

	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query archives: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := []*types.ArchiveRecord{}
	for rows.Next() {
		var record types.ArchiveRecord
		if err := rows.Scan(
			&record.ID,
			&record.RoomID,
			&record.CreatedAt,
			&record.ReclaimedAt,
			&record.OperationCount,
		); err != nil {
			return nil, fmt.Errorf("failed to scan archive row: %w", err)
		}
		records = append(records, &record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating archive rows: %w", err)
	}
	return records, nil
}

// GetArchive returns one archive including its operations.
func (m *Manager) GetArchive(ctx context.Context, archiveID string) (*types.ArchiveRecord, error) {
	row := m.db.QueryRowContext(ctx, `
		SELECT id, room_id, created_at, reclaimed_at, operation_count, operations
		FROM archives
		WHERE id = ?
	`, archiveID)

	var record types.ArchiveRecord
	var operationsJSON string
	err := row.Scan(
		&record.ID,
		&record.RoomID,
		&record.CreatedAt,
		&record.ReclaimedAt,
		&record.OperationCount,
		&operationsJSON,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, interfaces.ErrArchiveNotFound
		}
		return nil, fmt.Errorf("failed to query archive: %w", err)
	}

	if err := json.Unmarshal([]byte(operationsJSON), &record.Operations); err != nil {
		return nil, fmt.Errorf("failed to unmarshal operations: %w", err)
	}
	return &record, nil
}

// HealthCheck validates database connectivity
func (m *Manager) HealthCheck(ctx context.Context) error {
	m.mu.RLock()
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return ErrManagerClosed
	}

	if err := m.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM archives").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close shuts down the database manager
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	// ARCHITECTURAL DISCOVERY: Graceful shutdown requires careful goroutine coordination
	close(m.shutdown)
	m.wg.Wait()

	if err := m.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// ClampLimit applies the listing default and ceiling.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
