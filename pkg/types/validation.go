package types

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Limits applied to inbound intents.
const (
	MaxStrokePoints = 10000
	MaxRoomIDLength = 64
	MaxUserIDLength = 64
	MaxNameLength   = 50
	DefaultColor    = "#000000"
	DefaultWidth    = 2
)

// Compiled once at package initialization.
var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

// DecodeIntent parses one inbound frame into an Intent.
// A frame that is not a JSON object with a type field is a decode failure.
func DecodeIntent(data []byte) (*Intent, error) {
	var intent Intent
	if err := json.Unmarshal(data, &intent); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if intent.Type == "" {
		return nil, ErrMissingType
	}
	return &intent, nil
}

// Normalize fills defaults and validates a stroke in place.
func (s *Stroke) Normalize() error {
	switch s.Tool {
	case ToolBrush, ToolEraser:
	case "":
		s.Tool = ToolBrush
	default:
		return ErrInvalidTool
	}

	if strings.TrimSpace(s.Color) == "" {
		s.Color = DefaultColor
	}

	if math.IsNaN(s.Width) || math.IsInf(s.Width, 0) || s.Width < 0 {
		return ErrInvalidWidth
	}
	if s.Width == 0 {
		s.Width = DefaultWidth
	}

	if len(s.Points) == 0 {
		return ErrEmptyStroke
	}
	if len(s.Points) > MaxStrokePoints {
		return ErrStrokeTooLong
	}
	for _, p := range s.Points {
		if !isFinite(p.X) || !isFinite(p.Y) {
			return ErrInvalidPoint
		}
	}
	return nil
}

// IsValidID reports whether a client-supplied room or user id is usable.
func IsValidID(id string, maxLen int) bool {
	if len(id) < 1 || len(id) > maxLen {
		return false
	}
	return idRegex.MatchString(id)
}

// NormalizeRoomID trims a client room id and falls back to fallback, or to
// DefaultRoomID when fallback is empty.
func NormalizeRoomID(roomID, fallback string) string {
	roomID = strings.TrimSpace(roomID)
	if !IsValidID(roomID, MaxRoomIDLength) {
		if fallback == "" {
			return DefaultRoomID
		}
		return fallback
	}
	return roomID
}

// TruncateName trims a display name to MaxNameLength runes.
func TruncateName(name string) string {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) <= MaxNameLength {
		return name
	}
	runes := []rune(name)
	return string(runes[:MaxNameLength])
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
