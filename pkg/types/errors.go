package types

import "errors"

// Validation errors for inbound intents. Each one is reported back to the
// originating connection as an error event.
var (
	ErrMalformedMessage = errors.New("malformed message")
	ErrMissingType      = errors.New("message type is required")
	ErrMissingStroke    = errors.New("draw intent requires data")
	ErrInvalidTool      = errors.New("tool must be brush or eraser")
	ErrInvalidWidth     = errors.New("stroke width must be a positive number")
	ErrEmptyStroke      = errors.New("stroke must contain at least one point")
	ErrStrokeTooLong    = errors.New("stroke exceeds 10000 points")
	ErrInvalidPoint     = errors.New("stroke point coordinates must be finite")
	ErrMissingCursor    = errors.New("cursor intent requires cursor")
)
