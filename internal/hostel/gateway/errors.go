package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind is the failure category of a gateway error.
type Kind int

const (
	KindUnknown Kind = iota
	KindConnectivity
	KindTimeout
	KindPermissionDenied
)

func (k Kind) String() string {
	switch k {
	case KindConnectivity:
		return "connectivity"
	case KindTimeout:
		return "timeout"
	case KindPermissionDenied:
		return "permission_denied"
	default:
		return "unknown"
	}
}

// Error is returned by every gateway implementation when a call fails.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("gateway %s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("gateway %s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap classifies err and wraps it as *Error. nil stays nil and an existing
// *Error is returned unchanged.
func Wrap(op string, err error, classify func(error) (Kind, bool)) error {
	if err == nil {
		return nil
	}
	var ge *Error
	if errors.As(err, &ge) {
		return err
	}
	kind := Classify(err)
	if classify != nil {
		if k, ok := classify(err); ok {
			kind = k
		}
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of a gateway error, or false when err is not one.
func KindOf(err error) (Kind, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind, true
	}
	return KindUnknown, false
}

// Classify maps driver-independent errors to a Kind. Driver-specific codes are
// handled by each implementation before falling back to this.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return KindConnectivity
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection"):
		return KindConnectivity
	case strings.Contains(msg, "timeout"):
		return KindTimeout
	case strings.Contains(msg, "permission"):
		return KindPermissionDenied
	default:
		return KindUnknown
	}
}
