package card

import (
	"fmt"
	"sort"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/guard-e/hostel/internal/hostel/room"
)

// Field names used as keys in FieldErrors. They match the JSON field names.
const (
	FieldRoom       = "room"
	FieldCardNumber = "card_number"
	FieldValidFrom  = "valid_from"
	FieldValidUntil = "valid_until"
	FieldStatus     = "status"
)

// FieldErrors maps a field name to a human-readable message.
type FieldErrors map[string]string

// Fields returns the offending field names in sorted order.
func (fe FieldErrors) Fields() []string {
	out := make([]string, 0, len(fe))
	for k := range fe {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (fe FieldErrors) String() string {
	parts := make([]string, 0, len(fe))
	for _, k := range fe.Fields() {
		parts = append(parts, k+": "+fe[k])
	}
	return strings.Join(parts, "; ")
}

// Validate checks every rule independently and collects all violations.
// ok is true iff errs is empty.
func Validate(c Card) (ok bool, errs FieldErrors) {
	errs = FieldErrors{}

	if msg, bad := CheckRoom(c.Room); bad {
		errs[FieldRoom] = msg
	}
	if msg, bad := CheckNumber(c.CardNumber); bad {
		errs[FieldCardNumber] = msg
	}
	for field, msg := range CheckWindow(c.ValidFrom, c.ValidUntil) {
		errs[field] = msg
	}
	if !c.Status.Valid() {
		errs[FieldStatus] = "status must be 0 or 1"
	}

	return len(errs) == 0, errs
}

// CheckRoom validates a composite room identifier.
func CheckRoom(id int) (msg string, bad bool) {
	if id <= 0 {
		return "room must be greater than 0", true
	}
	if id > room.MaxID {
		return fmt.Sprintf("room must be at most %d", room.MaxID), true
	}
	if !room.Valid(id) {
		return "room must be written as floor and two-digit room number, e.g. 401", true
	}
	return "", false
}

// CheckNumber validates a card number.
func CheckNumber(n int64) (msg string, bad bool) {
	if n <= 0 {
		return "card number must be greater than 0", true
	}
	return "", false
}

// CheckWindow validates a validity window. Equal dates are rejected.
func CheckWindow(from, until *civil.Date) FieldErrors {
	errs := FieldErrors{}
	if from == nil {
		errs[FieldValidFrom] = "valid_from is required"
	} else if !from.IsValid() {
		errs[FieldValidFrom] = "valid_from is not a calendar date"
	}
	if until == nil {
		errs[FieldValidUntil] = "valid_until is required"
	} else if !until.IsValid() {
		errs[FieldValidUntil] = "valid_until is not a calendar date"
	}
	if len(errs) == 0 && !from.Before(*until) {
		errs[FieldValidUntil] = "valid_until must be later than valid_from"
	}
	return errs
}
