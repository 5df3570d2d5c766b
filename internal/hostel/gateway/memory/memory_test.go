package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/guard-e/hostel/internal/hostel/gateway"
	"github.com/guard-e/hostel/internal/hostel/gateway/gatewaytest"
	"github.com/guard-e/hostel/internal/hostel/gateway/memory"
	"github.com/guard-e/hostel/internal/hostel/types"
)

func TestStore_Suite(t *testing.T) {
	gatewaytest.Run(t, func(t *testing.T) interface {
		gateway.CardProcedures
		gateway.DumpRefresher
	} {
		return memory.New()
	})
}

func TestStore_DefaultValidFromIsToday(t *testing.T) {
	s := memory.New()
	s.SetClock(func() time.Time { return time.Date(2025, 6, 30, 23, 0, 0, 0, time.UTC) })

	out, err := s.InvokeCardProcedure(context.Background(), gateway.ProcedureParams{
		Action:     types.ActionUpsert,
		Room:       401,
		CardNumber: 1,
	})
	if err != nil {
		t.Fatalf("InvokeCardProcedure: %v", err)
	}
	if out.ValidFrom.String() != "2025-06-30" || out.ValidTo.String() != "2025-07-01" {
		t.Errorf("window = %s..%s", out.ValidFrom, out.ValidTo)
	}
}

func TestStore_FailureInjection(t *testing.T) {
	s := memory.New()
	s.Fail(context.DeadlineExceeded)

	_, err := s.InvokeCardProcedure(context.Background(), gateway.ProcedureParams{Action: types.ActionView, CardNumber: 1})
	if kind, ok := gateway.KindOf(err); !ok || kind != gateway.KindTimeout {
		t.Fatalf("expected timeout gateway error, got %v", err)
	}
	if s.Calls() != 1 {
		t.Errorf("Calls() = %d, want 1", s.Calls())
	}
	if err := s.Ping(context.Background()); err == nil {
		t.Error("Ping should fail while failure is injected")
	}

	s.Fail(nil)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping after clearing failure: %v", err)
	}
}

func TestStore_Identities(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	id := s.AddUser("warden", 3, 9, "hash")

	rec, err := s.AuthenticateIdentity(ctx, " warden ")
	if err != nil || rec == nil {
		t.Fatalf("AuthenticateIdentity: %v, %v", rec, err)
	}
	if rec.UserID != id || rec.Flags != 3 || rec.SFlags != 9 {
		t.Errorf("record = %+v", rec)
	}

	byID, err := s.IdentityByID(ctx, id)
	if err != nil || byID == nil || byID.Name != "warden" {
		t.Errorf("IdentityByID = %+v, %v", byID, err)
	}

	missing, err := s.AuthenticateIdentity(ctx, "nobody")
	if err != nil || missing != nil {
		t.Errorf("unknown user = %+v, %v", missing, err)
	}

	if h, _ := s.PasswordHash(ctx, "warden"); h != "hash" {
		t.Errorf("PasswordHash = %q", h)
	}
}

func TestStore_DumpsRecorded(t *testing.T) {
	s := memory.New()
	if err := s.RefreshCardDumps(context.Background(), 5, gateway.DumpRemove); err != nil {
		t.Fatal(err)
	}
	dumps := s.Dumps()
	if len(dumps) != 1 || dumps[0].CardNumber != 5 || dumps[0].Action != gateway.DumpRemove {
		t.Errorf("Dumps() = %+v", dumps)
	}

	s.Fail(errors.New("connection lost"))
	if err := s.RefreshCardDumps(context.Background(), 5, gateway.DumpAdd); err == nil {
		t.Error("expected injected failure")
	}
}
