// Package memory is an in-process card store that behaves like the legacy
// card procedure. It is intended for tests and dev environments.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/civil"

	"github.com/guard-e/hostel/internal/hostel/access"
	"github.com/guard-e/hostel/internal/hostel/gateway"
	"github.com/guard-e/hostel/internal/hostel/outcome"
	"github.com/guard-e/hostel/internal/hostel/room"
	"github.com/guard-e/hostel/internal/hostel/types"
)

const defaultProfileID = 1

type cardRecord struct {
	cardID     int64
	peopleID   int64
	profileID  int64
	number     int64
	roomLabel  string
	department string
	openDate   civil.Date
	closeDate  civil.Date
	actived    int
	comments   string
}

type userRecord struct {
	rec          access.IdentityRecord
	passwordHash string
}

// DumpRequest is a recorded RefreshCardDumps call.
type DumpRequest struct {
	CardNumber int64
	Action     gateway.DumpAction
}

// Store implements gateway.Store in memory.
type Store struct {
	mu         sync.Mutex
	now        func() time.Time
	cards      map[int64]*cardRecord
	users      map[string]*userRecord
	dumps      []DumpRequest
	nextCardID int64
	nextPeople int64
	nextUserID int64
	calls      int
	fail       error
}

var _ gateway.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		now:   time.Now,
		cards: make(map[int64]*cardRecord),
		users: make(map[string]*userRecord),
	}
}

// SetClock replaces the clock used for default dates.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Fail makes every following call return err until Fail(nil) is called.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

// Calls returns how many times InvokeCardProcedure was called. Test-only helper.
func (s *Store) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Dumps returns a copy of all dump refresh requests. Test-only helper.
func (s *Store) Dumps() []DumpRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DumpRequest, len(s.dumps))
	copy(out, s.dumps)
	return out
}

// AddUser registers a staff account and returns its id.
func (s *Store) AddUser(name string, flags, sflags int, passwordHash string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUserID++
	s.users[name] = &userRecord{
		rec: access.IdentityRecord{
			UserID: s.nextUserID,
			Name:   name,
			Flags:  flags,
			SFlags: sflags,
		},
		passwordHash: passwordHash,
	}
	return s.nextUserID
}

// SetFlags replaces a user's permission flags. It reports false for unknown users.
func (s *Store) SetFlags(name string, flags int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[name]
	if ok {
		u.rec.Flags = flags
	}
	return ok
}

func (s *Store) InvokeCardProcedure(_ context.Context, p gateway.ProcedureParams) (gateway.ProcedureOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if s.fail != nil {
		return gateway.ProcedureOutcome{}, gateway.Wrap("invoke_card_procedure", s.fail, nil)
	}

	switch p.Action {
	case types.ActionView:
		c, ok := s.cards[p.CardNumber]
		if !ok {
			return notFound(), nil
		}
		return c.outcome(outcome.CodeUpdated), nil

	case types.ActionUpsert:
		return s.upsert(p), nil

	case types.ActionDelete:
		c, ok := s.cards[p.CardNumber]
		if !ok {
			return notFound(), nil
		}
		delete(s.cards, p.CardNumber)
		return c.outcome(outcome.CodeUpdated), nil

	case types.ActionLock, types.ActionActivate:
		c, ok := s.cards[p.CardNumber]
		if !ok {
			return notFound(), nil
		}
		c.actived = 0
		if p.Action == types.ActionActivate {
			c.actived = 1
		}
		return c.outcome(outcome.CodeUpdated), nil

	default:
		return gateway.ProcedureOutcome{ResultCode: -1}, nil
	}
}

func (s *Store) upsert(p gateway.ProcedureParams) gateway.ProcedureOutcome {
	from := civil.DateOf(s.now())
	if p.ValidFrom != nil {
		from = *p.ValidFrom
	}
	days := p.ValidDays
	if days <= 0 {
		days = 1
	}

	c, exists := s.cards[p.CardNumber]
	if exists && c.department != p.Department {
		return c.outcome(outcome.CodeDuplicate)
	}

	code := outcome.CodeUpdated
	if !exists {
		s.nextCardID++
		s.nextPeople++
		c = &cardRecord{
			cardID:     s.nextCardID,
			peopleID:   s.nextPeople,
			profileID:  defaultProfileID,
			number:     p.CardNumber,
			department: p.Department,
		}
		s.cards[p.CardNumber] = c
		code = outcome.CodeCreated
	}

	c.roomLabel = room.Label(p.Room)
	c.openDate = from
	c.closeDate = from.AddDays(days)
	c.actived = 1
	c.comments = p.Comments
	return c.outcome(code)
}

func (s *Store) QueryCards(_ context.Context, f gateway.CardFilter) ([]gateway.CardRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fail != nil {
		return nil, gateway.Wrap("query_cards", s.fail, nil)
	}

	rows := make([]gateway.CardRow, 0, len(s.cards))
	for _, c := range s.cards {
		if f.CardNumber != nil && c.number != *f.CardNumber {
			continue
		}
		rows = append(rows, c.row())
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].CardID > rows[j].CardID })
	if f.Limit > 0 && len(rows) > f.Limit {
		rows = rows[:f.Limit]
	}
	return rows, nil
}

func (s *Store) RefreshCardDumps(_ context.Context, cardNumber int64, action gateway.DumpAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fail != nil {
		return gateway.Wrap("refresh_card_dumps", s.fail, nil)
	}
	s.dumps = append(s.dumps, DumpRequest{CardNumber: cardNumber, Action: action})
	return nil
}

func (s *Store) AuthenticateIdentity(_ context.Context, username string) (*access.IdentityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fail != nil {
		return nil, gateway.Wrap("authenticate_identity", s.fail, nil)
	}
	u, ok := s.users[strings.TrimSpace(username)]
	if !ok {
		return nil, nil
	}
	rec := u.rec
	return &rec, nil
}

func (s *Store) IdentityByID(_ context.Context, userID int64) (*access.IdentityRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fail != nil {
		return nil, gateway.Wrap("identity_by_id", s.fail, nil)
	}
	for _, u := range s.users {
		if u.rec.UserID == userID {
			rec := u.rec
			return &rec, nil
		}
	}
	return nil, nil
}

// PasswordHash returns the stored bcrypt hash, or "" for unknown users.
func (s *Store) PasswordHash(_ context.Context, username string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u, ok := s.users[username]; ok {
		return u.passwordHash, nil
	}
	return "", nil
}

func (s *Store) Ping(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return gateway.Wrap("ping", s.fail, nil)
	}
	return nil
}

func (s *Store) Close() error { return nil }

func notFound() gateway.ProcedureOutcome {
	return gateway.ProcedureOutcome{ResultCode: outcome.CodeNotFound}
}

func (c *cardRecord) outcome(code int) gateway.ProcedureOutcome {
	cardID, peopleID, profileID := c.cardID, c.peopleID, c.profileID
	actived := c.actived
	from, to := c.openDate, c.closeDate
	return gateway.ProcedureOutcome{
		PeopleID:   &peopleID,
		ProfileID:  &profileID,
		CardID:     &cardID,
		ResultCode: code,
		Actived:    &actived,
		ValidFrom:  &from,
		ValidTo:    &to,
	}
}

func (c *cardRecord) row() gateway.CardRow {
	from, to := c.openDate, c.closeDate
	return gateway.CardRow{
		CardID:     c.cardID,
		CardNumber: c.number,
		RoomLabel:  c.roomLabel,
		OpenDate:   &from,
		CloseDate:  &to,
		Active:     c.actived,
		Comments:   c.comments,
	}
}
