// Package audit records card commands issued through the API as an
// append-only log.
package audit

import (
	"context"
	"time"
)

// Event is one audited card command.
type Event struct {
	ID         string
	OccurredAt time.Time
	UserID     int64
	Username   string
	Action     string
	CardNumber *int64 // nil for listings
	Result     string // outcome kind or error class
	HTTPStatus int
	RequestID  string
}

// Store persists audit events.
type Store interface {
	Record(ctx context.Context, ev Event) error
	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]Event, error)
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
