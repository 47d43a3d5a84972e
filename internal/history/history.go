// Package history records the commands the voice assistant dispatched.
package history

import (
	"context"
	"time"
)

// Entry is one dispatched command.
type Entry struct {
	ID           string
	ActivationID string // empty for typed commands
	Transcript   string
	Category     string // empty for unknown commands
	Action       string
	Confidence   float64
	At           time.Time
}

// Store persists command history. Implementations must be safe for
// concurrent use.
type Store interface {
	Append(ctx context.Context, e Entry) error
	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close() error
}
