// Package postgres implements the card store on PostgreSQL. Card commands go
// through the hostel_cardedit() function installed by the migrations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guard-e/hostel/internal/hostel/access"
	"github.com/guard-e/hostel/internal/hostel/gateway"
)

// Store implements gateway.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

var _ gateway.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return wrap("ping", s.pool.Ping(ctx))
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) InvokeCardProcedure(ctx context.Context, p gateway.ProcedureParams) (gateway.ProcedureOutcome, error) {
	room, err := int4("room", p.Room)
	if err != nil {
		return gateway.ProcedureOutcome{}, wrap("invoke_card_procedure", err)
	}
	days, err := int4("valid_days", p.ValidDays)
	if err != nil {
		return gateway.ProcedureOutcome{}, wrap("invoke_card_procedure", err)
	}

	var validFrom *time.Time
	if p.ValidFrom != nil {
		t := p.ValidFrom.In(time.UTC)
		validFrom = &t
	}

	var (
		out      gateway.ProcedureOutcome
		actived  *int16
		from, to *time.Time
	)
	err = s.pool.QueryRow(ctx, `
SELECT o_people_id, o_profile_id, o_card_id, o_res, o_actived, o_valid_from, o_valid_to
FROM hostel_cardedit($1, $2, $3, $4, $5, $6, $7)`,
		int32(p.Action), room, p.CardNumber, validFrom, days, p.Comments, p.Department,
	).Scan(&out.PeopleID, &out.ProfileID, &out.CardID, &out.ResultCode, &actived, &from, &to)
	if err != nil {
		return gateway.ProcedureOutcome{}, wrap("invoke_card_procedure", err)
	}

	if actived != nil {
		a := int(*actived)
		out.Actived = &a
	}
	out.ValidFrom = dateOf(from)
	out.ValidTo = dateOf(to)
	return out, nil
}

func (s *Store) QueryCards(ctx context.Context, f gateway.CardFilter) ([]gateway.CardRow, error) {
	var (
		where []string
		args  []any
	)
	if f.CardNumber != nil {
		args = append(args, *f.CardNumber)
		where = append(where, fmt.Sprintf("c.card_number = $%d", len(args)))
	}

	q := `
SELECT c.card_id, c.card_number, COALESCE(p.fname, ''), c.open_date, c.close_date, c.actived, c.comments
FROM cards c LEFT JOIN people p ON p.people_id = c.people_id`
	if len(where) > 0 {
		q += "\nWHERE " + strings.Join(where, " AND ")
	}
	q += "\nORDER BY c.card_id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		q += fmt.Sprintf("\nLIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, wrap("query_cards", err)
	}
	defer rows.Close()

	var out []gateway.CardRow
	for rows.Next() {
		var (
			r        gateway.CardRow
			from, to *time.Time
			active   int16
		)
		if err := rows.Scan(&r.CardID, &r.CardNumber, &r.RoomLabel, &from, &to, &active, &r.Comments); err != nil {
			return nil, wrap("query_cards", err)
		}
		r.OpenDate = dateOf(from)
		r.CloseDate = dateOf(to)
		r.Active = int(active)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("query_cards", err)
	}
	return out, nil
}

func (s *Store) RefreshCardDumps(ctx context.Context, cardNumber int64, action gateway.DumpAction) error {
	_, err := s.pool.Exec(ctx, `SELECT upd_cardslist($1, $2)`, cardNumber, int32(action))
	return wrap("refresh_card_dumps", err)
}

func (s *Store) AuthenticateIdentity(ctx context.Context, username string) (*access.IdentityRecord, error) {
	return s.identity(ctx, "authenticate_identity",
		`SELECT user_id, name, flags, sflags FROM users WHERE name = $1`, strings.TrimSpace(username))
}

func (s *Store) IdentityByID(ctx context.Context, userID int64) (*access.IdentityRecord, error) {
	return s.identity(ctx, "identity_by_id",
		`SELECT user_id, name, flags, sflags FROM users WHERE user_id = $1`, userID)
}

func (s *Store) identity(ctx context.Context, op, query string, arg any) (*access.IdentityRecord, error) {
	var (
		rec           access.IdentityRecord
		flags, sflags int32
	)
	err := s.pool.QueryRow(ctx, query, arg).Scan(&rec.UserID, &rec.Name, &flags, &sflags)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrap(op, err)
	}
	rec.Flags, rec.SFlags = int(flags), int(sflags)
	return &rec, nil
}

// PasswordHash returns the stored bcrypt hash, or "" for unknown users.
func (s *Store) PasswordHash(ctx context.Context, username string) (string, error) {
	var hash string
	err := s.pool.QueryRow(ctx, `SELECT password_hash FROM users WHERE name = $1`, username).Scan(&hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", wrap("password_hash", err)
	}
	return hash, nil
}

// int4 converts v for an integer parameter, refusing values the column
// would truncate.
func int4(name string, v int) (int32, error) {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return 0, fmt.Errorf("%s %d out of int4 range", name, v)
	}
	return int32(v), nil
}

func dateOf(t *time.Time) *civil.Date {
	if t == nil {
		return nil
	}
	d := civil.DateOf(*t)
	return &d
}

func wrap(op string, err error) error {
	return gateway.Wrap(op, err, classify)
}

// classify maps pgx errors and SQLSTATE codes to gateway kinds.
func classify(err error) (gateway.Kind, bool) {
	if pgconn.Timeout(err) {
		return gateway.KindTimeout, true
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return gateway.KindConnectivity, true
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return 0, false
	}
	switch {
	case pgErr.Code == "42501", pgErr.Code == "28000", pgErr.Code == "28P01":
		return gateway.KindPermissionDenied, true
	case pgErr.Code == "57014", pgErr.Code == "55P03":
		return gateway.KindTimeout, true
	case strings.HasPrefix(pgErr.Code, "08"), pgErr.Code == "53300", pgErr.Code == "57P01":
		return gateway.KindConnectivity, true
	default:
		return gateway.KindUnknown, true
	}
}
