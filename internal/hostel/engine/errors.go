package engine

import (
	"errors"
	"fmt"

	"github.com/guard-e/hostel/internal/hostel/access"
	"github.com/guard-e/hostel/internal/hostel/card"
)

// ErrUnauthenticated is returned for any session that has not logged in.
var ErrUnauthenticated = errors.New("session is not authenticated")

// ValidationError carries every field that failed local validation. The
// command never reaches the store.
type ValidationError struct {
	Fields card.FieldErrors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid command: %s", e.Fields)
}

// AuthorizationError names the capability the session is missing.
type AuthorizationError struct {
	Required access.Capability
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("missing capability %s", e.Required)
}

// ConflictError is returned when the store reports the card as a duplicate.
type ConflictError struct {
	CardNumber int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("card %d already exists", e.CardNumber)
}

// NotFoundError is returned when the store has no such card.
type NotFoundError struct {
	CardNumber int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("card %d not found", e.CardNumber)
}

// InternalError covers result codes the engine cannot classify and other
// server-side faults. Code is the raw result code when there is one.
type InternalError struct {
	Code   int
	Reason string
}

func (e *InternalError) Error() string {
	if e.Reason != "" {
		return "internal error: " + e.Reason
	}
	return fmt.Sprintf("internal error: unexpected result code %d", e.Code)
}
