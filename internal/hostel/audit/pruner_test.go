package audit_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/guard-e/hostel/internal/hostel/audit"
	"github.com/guard-e/hostel/internal/hostel/audit/memory"
)

func silentLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type failingStore struct{ audit.Store }

func (failingStore) PruneOlderThan(context.Context, time.Time) (int64, error) {
	return 0, errors.New("disk full")
}

func TestPruner_DisabledWhenRetentionZero(t *testing.T) {
	p := audit.NewPruner(memory.New(), audit.PrunerConfig{RetentionDays: 0, Interval: time.Hour}, silentLogger())

	p.Start(context.Background())
	// Stop should return immediately.
	p.Stop()
}

func TestPruner_PruneOnce(t *testing.T) {
	ms := memory.New()
	ctx := context.Background()

	_ = ms.Record(ctx, audit.Event{Action: "UPSERT", OccurredAt: time.Now().UTC().AddDate(0, 0, -40)})
	_ = ms.Record(ctx, audit.Event{Action: "VIEW", OccurredAt: time.Now().UTC().AddDate(0, 0, -1)})

	p := audit.NewPruner(ms, audit.PrunerConfig{RetentionDays: 30}, silentLogger())
	deleted, err := p.PruneOnce(ctx)
	if err != nil {
		t.Fatalf("PruneOnce: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if ev := ms.Events(); len(ev) != 1 || ev[0].Action != "VIEW" {
		t.Errorf("remaining = %+v", ev)
	}
}

func TestPruner_StartPrunesImmediately(t *testing.T) {
	ms := memory.New()
	_ = ms.Record(context.Background(), audit.Event{Action: "DELETE", OccurredAt: time.Now().UTC().AddDate(-1, 0, 0)})

	p := audit.NewPruner(ms, audit.PrunerConfig{RetentionDays: 7, Interval: time.Hour}, silentLogger())
	p.Start(context.Background())
	defer p.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for len(ms.Events()) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("startup prune did not run")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPruner_StopIsIdempotent(t *testing.T) {
	p := audit.NewPruner(memory.New(), audit.PrunerConfig{RetentionDays: 30, Interval: time.Hour}, silentLogger())

	p.Stop() // before Start

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()
	p.Stop()
	p.Stop()
}

func TestPruner_ErrorIsReturned(t *testing.T) {
	p := audit.NewPruner(failingStore{}, audit.PrunerConfig{RetentionDays: 1}, silentLogger())
	if _, err := p.PruneOnce(context.Background()); err == nil {
		t.Error("expected prune error")
	}
}

func TestMemoryStore_RecentNewestFirst(t *testing.T) {
	ms := memory.New()
	ctx := context.Background()
	for _, a := range []string{"VIEW", "UPSERT", "LOCK"} {
		_ = ms.Record(ctx, audit.Event{Action: a})
	}

	got, err := ms.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Action != "LOCK" || got[1].Action != "UPSERT" {
		t.Errorf("Recent(2) = %+v", got)
	}
}
