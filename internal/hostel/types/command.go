package types

import (
	"fmt"
	"strings"

	"cloud.google.com/go/civil"
)

// Action is the lifecycle operation a Command asks for. The numeric values are
// the ones the card procedure expects.
type Action int

const (
	ActionView     Action = 0
	ActionUpsert   Action = 1
	ActionDelete   Action = 2
	ActionLock     Action = 3
	ActionActivate Action = 4
)

var actionNames = map[Action]string{
	ActionView:     "VIEW",
	ActionUpsert:   "UPSERT",
	ActionDelete:   "DELETE",
	ActionLock:     "LOCK",
	ActionActivate: "ACTIVATE",
}

func (a Action) String() string {
	if n, ok := actionNames[a]; ok {
		return n
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// Valid reports whether a is one of the five known actions.
func (a Action) Valid() bool {
	_, ok := actionNames[a]
	return ok
}

// Mutating reports whether a changes the store.
func (a Action) Mutating() bool {
	return a != ActionView
}

// ParseAction accepts the action name in any case.
func ParseAction(s string) (Action, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for a, n := range actionNames {
		if n == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown action %q", s)
}

// Command is one requested card operation. Optional fields are pointers; only
// CardNumber is meaningful for VIEW, DELETE, LOCK and ACTIVATE.
type Command struct {
	Action     Action      `json:"action"`
	Room       *int        `json:"room,omitempty"`
	CardNumber *int64      `json:"card_number,omitempty"`
	ValidFrom  *civil.Date `json:"valid_from,omitempty"`
	ValidDays  *int        `json:"valid_days,omitempty"`
	Comments   *string     `json:"comments,omitempty"`
	Department string      `json:"department,omitempty"`
}

// Number returns the card number or 0 when absent.
func (c Command) Number() int64 {
	if c.CardNumber == nil {
		return 0
	}
	return *c.CardNumber
}
