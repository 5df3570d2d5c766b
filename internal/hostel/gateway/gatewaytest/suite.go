// Package gatewaytest holds a behavioural test suite shared by every card
// store implementation.
package gatewaytest

import (
	"context"
	"testing"

	"cloud.google.com/go/civil"

	"github.com/guard-e/hostel/internal/hostel/gateway"
	"github.com/guard-e/hostel/internal/hostel/outcome"
	"github.com/guard-e/hostel/internal/hostel/types"
)

const department = "ХОСТЕЛ"

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) interface {
	gateway.CardProcedures
	gateway.DumpRefresher
}

// Run exercises the card procedure semantics against a store.
func Run(t *testing.T, newStore Factory) {
	t.Run("UpsertCreatesThenUpdates", func(t *testing.T) { testUpsert(t, newStore(t)) })
	t.Run("UpsertOtherDepartmentIsDuplicate", func(t *testing.T) { testDuplicate(t, newStore(t)) })
	t.Run("ViewLockActivateDelete", func(t *testing.T) { testLifecycle(t, newStore(t)) })
	t.Run("MissingCardIsNotFound", func(t *testing.T) { testNotFound(t, newStore(t)) })
	t.Run("UnknownActionCode", func(t *testing.T) { testUnknownAction(t, newStore(t)) })
	t.Run("QueryCardsNewestFirst", func(t *testing.T) { testQuery(t, newStore(t)) })
	t.Run("RefreshCardDumps", func(t *testing.T) { testDumps(t, newStore(t)) })
}

func upsert(number int64, roomID int, from civil.Date, days int) gateway.ProcedureParams {
	return gateway.ProcedureParams{
		Action:     types.ActionUpsert,
		Room:       roomID,
		CardNumber: number,
		ValidFrom:  &from,
		ValidDays:  days,
		Comments:   "guest",
		Department: department,
	}
}

func byNumber(a types.Action, number int64) gateway.ProcedureParams {
	return gateway.ProcedureParams{Action: a, CardNumber: number, Department: department}
}

func invoke(t *testing.T, s gateway.CardProcedures, p gateway.ProcedureParams) gateway.ProcedureOutcome {
	t.Helper()
	out, err := s.InvokeCardProcedure(context.Background(), p)
	if err != nil {
		t.Fatalf("InvokeCardProcedure(%s, %d): %v", p.Action, p.CardNumber, err)
	}
	return out
}

func testUpsert(t *testing.T, s gateway.CardProcedures) {
	from := civil.Date{Year: 2025, Month: 1, Day: 28}

	out := invoke(t, s, upsert(1234567, 401, from, 3))
	if out.ResultCode != outcome.CodeCreated {
		t.Fatalf("first upsert code = %d, want %d", out.ResultCode, outcome.CodeCreated)
	}
	if out.CardID == nil || out.PeopleID == nil || out.ProfileID == nil {
		t.Fatalf("created card missing store ids: %+v", out)
	}
	if out.ValidTo == nil || out.ValidTo.String() != "2025-01-31" {
		t.Errorf("valid_to = %v, want 2025-01-31", out.ValidTo)
	}
	if out.Actived == nil || *out.Actived != 1 {
		t.Errorf("new card not active: %v", out.Actived)
	}

	again := invoke(t, s, upsert(1234567, 402, from, 10))
	if again.ResultCode != outcome.CodeUpdated {
		t.Fatalf("second upsert code = %d, want %d", again.ResultCode, outcome.CodeUpdated)
	}
	if again.CardID == nil || *again.CardID != *out.CardID {
		t.Errorf("update changed card id: %v vs %v", again.CardID, out.CardID)
	}
	if again.ValidTo == nil || again.ValidTo.String() != "2025-02-07" {
		t.Errorf("valid_to after update = %v, want 2025-02-07", again.ValidTo)
	}
}

func testDuplicate(t *testing.T, s gateway.CardProcedures) {
	from := civil.Date{Year: 2025, Month: 3, Day: 1}
	invoke(t, s, upsert(555, 101, from, 1))

	p := upsert(555, 101, from, 1)
	p.Department = "OFFICE"
	if out := invoke(t, s, p); out.ResultCode != outcome.CodeDuplicate {
		t.Errorf("upsert from other department code = %d, want %d", out.ResultCode, outcome.CodeDuplicate)
	}
}

func testLifecycle(t *testing.T, s gateway.CardProcedures) {
	from := civil.Date{Year: 2025, Month: 5, Day: 10}
	invoke(t, s, upsert(77, 1203, from, 2))

	view := invoke(t, s, byNumber(types.ActionView, 77))
	if view.ResultCode != outcome.CodeUpdated {
		t.Fatalf("view code = %d", view.ResultCode)
	}
	if view.ValidFrom == nil || *view.ValidFrom != from {
		t.Errorf("view valid_from = %v, want %v", view.ValidFrom, from)
	}

	lock := invoke(t, s, byNumber(types.ActionLock, 77))
	if lock.ResultCode != outcome.CodeUpdated || lock.Actived == nil || *lock.Actived != 0 {
		t.Errorf("lock = code %d actived %v", lock.ResultCode, lock.Actived)
	}

	act := invoke(t, s, byNumber(types.ActionActivate, 77))
	if act.ResultCode != outcome.CodeUpdated || act.Actived == nil || *act.Actived != 1 {
		t.Errorf("activate = code %d actived %v", act.ResultCode, act.Actived)
	}

	if del := invoke(t, s, byNumber(types.ActionDelete, 77)); del.ResultCode != outcome.CodeUpdated {
		t.Errorf("delete code = %d", del.ResultCode)
	}
	if gone := invoke(t, s, byNumber(types.ActionView, 77)); gone.ResultCode != outcome.CodeNotFound {
		t.Errorf("view after delete code = %d", gone.ResultCode)
	}
}

func testNotFound(t *testing.T, s gateway.CardProcedures) {
	for _, a := range []types.Action{types.ActionView, types.ActionDelete, types.ActionLock, types.ActionActivate} {
		if out := invoke(t, s, byNumber(a, 999)); out.ResultCode != outcome.CodeNotFound {
			t.Errorf("%s on missing card code = %d, want %d", a, out.ResultCode, outcome.CodeNotFound)
		}
	}
}

func testUnknownAction(t *testing.T, s gateway.CardProcedures) {
	out := invoke(t, s, byNumber(types.Action(9), 1))
	if outcome.Translate(out.ResultCode).Kind != outcome.Unknown {
		t.Errorf("unknown action code = %d, want an unmapped code", out.ResultCode)
	}
}

func testQuery(t *testing.T, s gateway.CardProcedures) {
	from := civil.Date{Year: 2025, Month: 1, Day: 1}
	for _, n := range []int64{10, 20, 30} {
		invoke(t, s, upsert(n, 401, from, 1))
	}

	rows, err := s.QueryCards(context.Background(), gateway.CardFilter{})
	if err != nil {
		t.Fatalf("QueryCards: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].CardNumber != 30 || rows[2].CardNumber != 10 {
		t.Errorf("rows not newest first: %+v", rows)
	}
	if rows[0].RoomLabel != "401" {
		t.Errorf("room label = %q", rows[0].RoomLabel)
	}

	n := int64(20)
	one, err := s.QueryCards(context.Background(), gateway.CardFilter{CardNumber: &n})
	if err != nil {
		t.Fatalf("QueryCards(20): %v", err)
	}
	if len(one) != 1 || one[0].CardNumber != 20 {
		t.Errorf("filtered rows = %+v", one)
	}

	limited, err := s.QueryCards(context.Background(), gateway.CardFilter{Limit: 2})
	if err != nil {
		t.Fatalf("QueryCards(limit): %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limit ignored: %d rows", len(limited))
	}
}

func testDumps(t *testing.T, s gateway.DumpRefresher) {
	ctx := context.Background()
	if err := s.RefreshCardDumps(ctx, 1234567, gateway.DumpAdd); err != nil {
		t.Fatalf("RefreshCardDumps add: %v", err)
	}
	if err := s.RefreshCardDumps(ctx, 1234567, gateway.DumpRemove); err != nil {
		t.Fatalf("RefreshCardDumps remove: %v", err)
	}
}
