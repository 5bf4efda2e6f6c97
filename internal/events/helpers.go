package events

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxErrorLen = 500

// SanitizeUTF8 drops invalid UTF-8 sequences so events always marshal cleanly
func SanitizeUTF8(s string) string {
	return strings.ToValidUTF8(s, "")
}

// sanitizeError bounds error text carried in events
func sanitizeError(s string) string {
	s = SanitizeUTF8(s)
	if r := []rune(s); len(r) > maxErrorLen {
		return string(r[:maxErrorLen])
	}
	return s
}

// Base is embedded in every event
type Base struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Source    string    `json:"source"`
	UserID    string    `json:"user_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// NewBase creates a base event with a fresh id
func NewBase(eventType, userID string) Base {
	return Base{
		ID:        uuid.NewString(),
		Type:      eventType,
		Source:    "erpinsight",
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Version:   "1.0",
	}
}
