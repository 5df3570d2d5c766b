package engine

import (
	"errors"
	"net/http"

	"github.com/guard-e/hostel/internal/hostel/gateway"
)

// Stable error classes shown to front ends.
const (
	ClassOK               = "ok"
	ClassInvalidInput     = "invalid_input"
	ClassUnauthenticated  = "unauthenticated"
	ClassForbidden        = "forbidden"
	ClassNotFound         = "not_found"
	ClassConflict         = "conflict"
	ClassStoreUnavailable = "store_unavailable"
	ClassStoreTimeout     = "store_timeout"
	ClassStoreForbidden   = "store_forbidden"
	ClassStoreError       = "store_error"
	ClassInternal         = "internal_error"
)

// Status is the front-end view of an error.
type Status struct {
	Class      string
	HTTPStatus int
}

// StatusOf maps err to exactly one Status. A nil error is ClassOK.
func StatusOf(err error) Status {
	if err == nil {
		return Status{ClassOK, http.StatusOK}
	}

	var (
		valErr  *ValidationError
		authErr *AuthorizationError
		nfErr   *NotFoundError
		cfErr   *ConflictError
		gwErr   *gateway.Error
	)
	switch {
	case errors.As(err, &valErr):
		return Status{ClassInvalidInput, http.StatusBadRequest}
	case errors.Is(err, ErrUnauthenticated):
		return Status{ClassUnauthenticated, http.StatusUnauthorized}
	case errors.As(err, &authErr):
		return Status{ClassForbidden, http.StatusForbidden}
	case errors.As(err, &nfErr):
		return Status{ClassNotFound, http.StatusNotFound}
	case errors.As(err, &cfErr):
		return Status{ClassConflict, http.StatusConflict}
	case errors.As(err, &gwErr):
		switch gwErr.Kind {
		case gateway.KindConnectivity:
			return Status{ClassStoreUnavailable, http.StatusServiceUnavailable}
		case gateway.KindTimeout:
			return Status{ClassStoreTimeout, http.StatusGatewayTimeout}
		case gateway.KindPermissionDenied:
			return Status{ClassStoreForbidden, http.StatusForbidden}
		default:
			return Status{ClassStoreError, http.StatusInternalServerError}
		}
	default:
		return Status{ClassInternal, http.StatusInternalServerError}
	}
}
