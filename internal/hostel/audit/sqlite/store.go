// Package sqlite stores the audit log in the SQLite card database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	dbpkg "github.com/guard-e/hostel/internal/db"
	"github.com/guard-e/hostel/internal/hostel/audit"
)

type Store struct {
	db     *sql.DB
	writer *dbpkg.Worker
}

var _ audit.Store = (*Store)(nil)

func New(db *sql.DB, writer *dbpkg.Worker) *Store {
	return &Store{db: db, writer: writer}
}

func (s *Store) Record(ctx context.Context, ev audit.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	var userID any
	if ev.UserID > 0 {
		userID = ev.UserID
	}
	var cardNumber any
	if ev.CardNumber != nil {
		cardNumber = *ev.CardNumber
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO audit_events(
  event_id, occurred_at_ms, user_id, username, action,
  card_number, result, http_status, request_id
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?);`,
			ev.ID, ev.OccurredAt.UTC().UnixMilli(), userID, ev.Username, ev.Action,
			cardNumber, ev.Result, ev.HTTPStatus, ev.RequestID,
		); err != nil {
			return fmt.Errorf("Record insert: %w", err)
		}
		return nil
	})
}

func (s *Store) Recent(ctx context.Context, limit int) ([]audit.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT event_id, occurred_at_ms, user_id, username, action, card_number, result, http_status, request_id
FROM audit_events
ORDER BY occurred_at_ms DESC, rowid DESC
LIMIT ?;`, limit)
	if err != nil {
		return nil, fmt.Errorf("Recent: %w", err)
	}
	defer rows.Close()

	var out []audit.Event
	for rows.Next() {
		var (
			ev         audit.Event
			occurredMs int64
			userID     sql.NullInt64
			cardNumber sql.NullInt64
		)
		if err := rows.Scan(&ev.ID, &occurredMs, &userID, &ev.Username, &ev.Action,
			&cardNumber, &ev.Result, &ev.HTTPStatus, &ev.RequestID); err != nil {
			return nil, fmt.Errorf("Recent scan: %w", err)
		}
		ev.OccurredAt = time.UnixMilli(occurredMs).UTC()
		ev.UserID = userID.Int64
		if cardNumber.Valid {
			n := cardNumber.Int64
			ev.CardNumber = &n
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// PruneOlderThan deletes events before cutoff using idx_audit_time.
func (s *Store) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	var deleted int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM audit_events WHERE occurred_at_ms < ?;`, cutoff.UTC().UnixMilli())
		if err != nil {
			return fmt.Errorf("PruneOlderThan: %w", err)
		}
		deleted, _ = res.RowsAffected()
		return nil
	})
	return deleted, err
}
