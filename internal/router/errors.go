package router

import "errors"

// Router-specific error types. None of them is fatal to a connection; the hub
// logs them and keeps processing.
var (
	ErrUnknownConnection   = errors.New("unknown connection")
	ErrDuplicateConnection = errors.New("connection already open")
	ErrUnknownIntent       = errors.New("unknown intent type")
	ErrNotJoined           = errors.New("intent requires a joined connection")
	ErrAlreadyJoined       = errors.New("connection already joined")
	ErrSuperseded          = errors.New("participant rejoined on another connection")
	ErrInvalidIntent       = errors.New("invalid intent")
)
