package interfaces

import "errors"

// Common interface errors used across components
var (
	ErrArchiveNotFound = errors.New("archive not found")
	ErrChannelClosed   = errors.New("channel closed")
)
