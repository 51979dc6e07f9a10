package interfaces

import (
	"context"

	"whiteboard/pkg/types"
)

// ArchiveStore keeps the final drawing of reclaimed rooms.
// Archives are read-only history; nothing loads them back into a live room.
type ArchiveStore interface {
	// SaveArchive persists one archive record.
	SaveArchive(ctx context.Context, record *types.ArchiveRecord) error

	// ListArchives returns summaries (no operations), newest first.
	// An empty roomID lists archives for every room.
	ListArchives(ctx context.Context, roomID string, limit int) ([]*types.ArchiveRecord, error)

	// GetArchive returns one archive including its operations.
	GetArchive(ctx context.Context, archiveID string) (*types.ArchiveRecord, error)

	// HealthCheck verifies the backing store is reachable.
	HealthCheck(ctx context.Context) error

	Close() error
}
