package websocket

import (
	"errors"
	"fmt"

	"whiteboard/pkg/interfaces"
)

// Connection-related errors
var (
	ErrConnectionClosed = fmt.Errorf("websocket: %w", interfaces.ErrChannelClosed)
	ErrSendBufferFull   = errors.New("send buffer full")
)

// Registry-related errors
var (
	ErrNilConnection       = errors.New("connection cannot be nil")
	ErrDuplicateConnection = errors.New("connection already registered")
)
