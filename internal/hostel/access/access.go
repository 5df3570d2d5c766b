// Package access decodes staff permission bitmasks and answers authorization
// questions for a session.
package access

import (
	"strings"
)

// Capability names a single permission.
type Capability string

const (
	CanView   Capability = "can_view"
	CanCreate Capability = "can_create"
	CanEdit   Capability = "can_edit"
	CanDelete Capability = "can_delete"
	IsAdmin   Capability = "is_admin"
)

// Bits of the raw flags word.
const (
	FlagCreate = 1 << 0
	FlagEdit   = 1 << 1
	FlagDelete = 1 << 2
	FlagAdmin  = 1 << 3
)

// Capabilities lists every capability in display order.
var Capabilities = []Capability{CanView, CanCreate, CanEdit, CanDelete, IsAdmin}

// Permissions is the decoded form of a flags word.
type Permissions struct {
	CanView   bool `json:"can_view"`
	CanCreate bool `json:"can_create"`
	CanEdit   bool `json:"can_edit"`
	CanDelete bool `json:"can_delete"`
	IsAdmin   bool `json:"is_admin"`
}

// Decode derives Permissions from the identity store's flag words. Admin
// implies every other capability. sflags is accepted but no rule reads it.
func Decode(flags, sflags int) Permissions {
	admin := flags&FlagAdmin != 0
	return Permissions{
		CanView:   true,
		CanCreate: admin || flags&FlagCreate != 0,
		CanEdit:   admin || flags&FlagEdit != 0,
		CanDelete: admin || flags&FlagDelete != 0,
		IsAdmin:   admin,
	}
}

// Has reports whether p grants c. Unknown capabilities are never granted.
func (p Permissions) Has(c Capability) bool {
	if p.IsAdmin {
		return true
	}
	switch c {
	case CanView:
		return p.CanView
	case CanCreate:
		return p.CanCreate
	case CanEdit:
		return p.CanEdit
	case CanDelete:
		return p.CanDelete
	default:
		return false
	}
}

// Granted returns the capabilities p grants, in display order.
func (p Permissions) Granted() []Capability {
	var out []Capability
	for _, c := range Capabilities {
		if p.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// IdentityRecord is what the identity store returns for a known user.
type IdentityRecord struct {
	UserID int64
	Name   string
	Flags  int
	SFlags int
}

// Session is the acting staff member. Authenticated is set together with
// the identity at login time; a session carrying only one of the two is
// treated as anonymous.
type Session struct {
	UserID        int64
	Username      string
	Flags         int
	SFlags        int
	Authenticated bool
}

// Anonymous is the zero session.
var Anonymous = Session{}

// NewSession builds an authenticated session from an identity record.
func NewSession(rec IdentityRecord) Session {
	return Session{
		UserID:        rec.UserID,
		Username:      rec.Name,
		Flags:         rec.Flags,
		SFlags:        rec.SFlags,
		Authenticated: true,
	}
}

// IsAuthenticated requires the explicit flag and a non-empty identity.
func (s Session) IsAuthenticated() bool {
	return s.Authenticated && s.UserID > 0 && strings.TrimSpace(s.Username) != ""
}

// Permissions decodes the session's flags. Anonymous sessions get nothing,
// not even view.
func (s Session) Permissions() Permissions {
	if !s.IsAuthenticated() {
		return Permissions{}
	}
	return Decode(s.Flags, s.SFlags)
}

// Authorize reports whether s may exercise c.
func Authorize(s Session, c Capability) bool {
	if !s.IsAuthenticated() {
		return false
	}
	return Decode(s.Flags, s.SFlags).Has(c)
}

// AuthorizeAny reports whether s holds at least one of cs.
func AuthorizeAny(s Session, cs ...Capability) bool {
	for _, c := range cs {
		if Authorize(s, c) {
			return true
		}
	}
	return false
}
