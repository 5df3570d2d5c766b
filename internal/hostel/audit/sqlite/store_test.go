package sqlite_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/guard-e/hostel/internal/db"
	"github.com/guard-e/hostel/internal/hostel/audit"
	auditsqlite "github.com/guard-e/hostel/internal/hostel/audit/sqlite"
)

func newTestStore(t *testing.T) (*auditsqlite.Store, *sql.DB) {
	t.Helper()
	conn, err := db.Open(context.Background(), db.Config{Path: ":memory:"})
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	w := db.NewWorker(conn)
	t.Cleanup(func() {
		w.Close()
		conn.Close()
	})
	return auditsqlite.New(conn, w), conn
}

// ═══════════════════════════════════════════════════════════════════════════
// Record
// ═══════════════════════════════════════════════════════════════════════════

func TestStore_Record_ColumnsCorrect(t *testing.T) {
	s, conn := newTestStore(t)
	now := time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)
	number := int64(1234567)

	err := s.Record(context.Background(), audit.Event{
		OccurredAt: now,
		UserID:     3,
		Username:   "warden",
		Action:     "UPSERT",
		CardNumber: &number,
		Result:     "created",
		HTTPStatus: 201,
		RequestID:  "req-1",
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	var (
		id         string
		occurredMs int64
		userID     int64
		card       int64
		result     string
		status     int
	)
	err = conn.QueryRow(`
SELECT event_id, occurred_at_ms, user_id, card_number, result, http_status FROM audit_events`).
		Scan(&id, &occurredMs, &userID, &card, &result, &status)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if id == "" {
		t.Error("event id not generated")
	}
	if occurredMs != now.UnixMilli() || userID != 3 || card != number || result != "created" || status != 201 {
		t.Errorf("row = %d %d %d %q %d", occurredMs, userID, card, result, status)
	}
}

func TestStore_Record_NullableColumns(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Record(ctx, audit.Event{Action: "LIST", Result: "unauthenticated", HTTPStatus: 401}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	got, err := s.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(got) != 1 || got[0].CardNumber != nil || got[0].UserID != 0 {
		t.Errorf("Recent = %+v", got)
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Recent / PruneOlderThan
// ═══════════════════════════════════════════════════════════════════════════

func TestStore_RecentAndPrune(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, action := range []string{"VIEW", "UPSERT", "DELETE"} {
		if err := s.Record(ctx, audit.Event{
			OccurredAt: base.AddDate(0, 0, i*10),
			Action:     action,
			Result:     "ok",
		}); err != nil {
			t.Fatalf("Record %s: %v", action, err)
		}
	}

	recent, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 || recent[0].Action != "DELETE" || recent[1].Action != "UPSERT" {
		t.Errorf("Recent(2) = %+v", recent)
	}

	deleted, err := s.PruneOlderThan(ctx, base.AddDate(0, 0, 15))
	if err != nil {
		t.Fatalf("PruneOlderThan: %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	left, _ := s.Recent(ctx, 0)
	if len(left) != 1 || left[0].Action != "DELETE" {
		t.Errorf("left = %+v", left)
	}
}
