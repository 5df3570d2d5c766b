// Package gateway defines the contract between the card lifecycle engine and
// the legacy data store that owns cards, cardholders and staff accounts.
//
// Implementations live in the memory, sqlite and postgres subpackages.
package gateway

import (
	"context"

	"cloud.google.com/go/civil"

	"github.com/guard-e/hostel/internal/hostel/access"
	"github.com/guard-e/hostel/internal/hostel/types"
)

// ProcedureParams are the arguments of one card procedure call.
type ProcedureParams struct {
	Action     types.Action
	Room       int
	CardNumber int64
	ValidFrom  *civil.Date
	ValidDays  int
	Comments   string
	Department string
}

// ProcedureOutcome is the raw row the card procedure returns.
type ProcedureOutcome struct {
	PeopleID   *int64
	ProfileID  *int64
	CardID     *int64
	ResultCode int
	Actived    *int
	ValidFrom  *civil.Date
	ValidTo    *civil.Date
}

// CardRow is one row of a card listing.
type CardRow struct {
	CardID     int64
	CardNumber int64
	RoomLabel  string
	OpenDate   *civil.Date
	CloseDate  *civil.Date
	Active     int
	Comments   string
}

// CardFilter narrows QueryCards. The zero value lists every card.
type CardFilter struct {
	CardNumber *int64
	Limit      int
}

// CardProcedures is the procedural surface of the card store.
type CardProcedures interface {
	// InvokeCardProcedure runs one atomic card command. Failures are returned
	// as *Error.
	InvokeCardProcedure(ctx context.Context, p ProcedureParams) (ProcedureOutcome, error)
	// QueryCards lists cards newest first.
	QueryCards(ctx context.Context, f CardFilter) ([]CardRow, error)
}

// IdentityStore resolves staff identities. It never checks credentials.
type IdentityStore interface {
	// AuthenticateIdentity returns nil, nil when the username is unknown.
	AuthenticateIdentity(ctx context.Context, username string) (*access.IdentityRecord, error)
	IdentityByID(ctx context.Context, userID int64) (*access.IdentityRecord, error)
}

// DumpAction selects what RefreshCardDumps does with a card.
type DumpAction int

const (
	DumpAdd    DumpAction = 0
	DumpRemove DumpAction = 1
)

func (a DumpAction) String() string {
	if a == DumpRemove {
		return "remove"
	}
	return "add"
}

// DumpRefresher asks the store to rebuild the card lists pushed to the door
// controllers.
type DumpRefresher interface {
	RefreshCardDumps(ctx context.Context, cardNumber int64, action DumpAction) error
}

// Pinger checks that the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Store bundles everything a full backend provides.
type Store interface {
	CardProcedures
	IdentityStore
	DumpRefresher
	Pinger
	Close() error
}
