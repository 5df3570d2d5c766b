package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/guard-e/hostel/internal/hostel/gateway"
	"github.com/guard-e/hostel/internal/hostel/outcome"
	"github.com/guard-e/hostel/internal/hostel/room"
	"github.com/guard-e/hostel/internal/hostel/types"
)

const defaultProfileID = 1

// cardState is the stored state of one card joined with its holder.
type cardState struct {
	cardID     int64
	peopleID   int64
	profileID  int64
	department string
	openDate   string
	closeDate  string
	actived    int
}

func (c cardState) outcome(code int) (gateway.ProcedureOutcome, error) {
	from, err := civil.ParseDate(c.openDate)
	if err != nil {
		return gateway.ProcedureOutcome{}, fmt.Errorf("card %d open_date: %w", c.cardID, err)
	}
	to, err := civil.ParseDate(c.closeDate)
	if err != nil {
		return gateway.ProcedureOutcome{}, fmt.Errorf("card %d close_date: %w", c.cardID, err)
	}
	cardID, peopleID, profileID, actived := c.cardID, c.peopleID, c.profileID, c.actived
	return gateway.ProcedureOutcome{
		PeopleID:   &peopleID,
		ProfileID:  &profileID,
		CardID:     &cardID,
		ResultCode: code,
		Actived:    &actived,
		ValidFrom:  &from,
		ValidTo:    &to,
	}, nil
}

// InvokeCardProcedure emulates the legacy card procedure in one transaction.
func (s *Store) InvokeCardProcedure(ctx context.Context, p gateway.ProcedureParams) (gateway.ProcedureOutcome, error) {
	if !p.Action.Valid() {
		return gateway.ProcedureOutcome{ResultCode: -1}, nil
	}

	var out gateway.ProcedureOutcome
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		nowMs := s.now().UTC().UnixMilli()

		c, found, err := loadCard(ctx, tx, p.CardNumber)
		if err != nil {
			return err
		}

		if p.Action == types.ActionUpsert {
			out, err = s.upsert(ctx, tx, p, c, found, nowMs)
			return err
		}
		if !found {
			out = gateway.ProcedureOutcome{ResultCode: outcome.CodeNotFound}
			return nil
		}

		switch p.Action {
		case types.ActionDelete:
			// Cascades to cards.
			if _, err := tx.ExecContext(ctx, `DELETE FROM people WHERE people_id = ?;`, c.peopleID); err != nil {
				return fmt.Errorf("delete card %d: %w", p.CardNumber, err)
			}
		case types.ActionLock, types.ActionActivate:
			c.actived = 0
			if p.Action == types.ActionActivate {
				c.actived = 1
			}
			if _, err := tx.ExecContext(ctx, `
UPDATE cards SET actived = ?, updated_at_ms = ? WHERE card_id = ?;`, c.actived, nowMs, c.cardID); err != nil {
				return fmt.Errorf("set actived on card %d: %w", p.CardNumber, err)
			}
		}

		out, err = c.outcome(outcome.CodeUpdated)
		return err
	})
	if err != nil {
		return gateway.ProcedureOutcome{}, wrap("invoke_card_procedure", err)
	}
	return out, nil
}

func (s *Store) upsert(ctx context.Context, tx *sql.Tx, p gateway.ProcedureParams, c cardState, found bool, nowMs int64) (gateway.ProcedureOutcome, error) {
	if found && c.department != p.Department {
		return c.outcome(outcome.CodeDuplicate)
	}

	from := civil.DateOf(s.now())
	if p.ValidFrom != nil {
		from = *p.ValidFrom
	}
	days := p.ValidDays
	if days <= 0 {
		days = 1
	}
	c.openDate = from.String()
	c.closeDate = from.AddDays(days).String()
	c.actived = 1
	label := room.Label(p.Room)

	if found {
		if _, err := tx.ExecContext(ctx, `UPDATE people SET fname = ? WHERE people_id = ?;`, label, c.peopleID); err != nil {
			return gateway.ProcedureOutcome{}, fmt.Errorf("update holder of card %d: %w", p.CardNumber, err)
		}
		if _, err := tx.ExecContext(ctx, `
UPDATE cards
SET open_date = ?, close_date = ?, actived = 1, comments = ?, updated_at_ms = ?
WHERE card_id = ?;`, c.openDate, c.closeDate, p.Comments, nowMs, c.cardID); err != nil {
			return gateway.ProcedureOutcome{}, fmt.Errorf("update card %d: %w", p.CardNumber, err)
		}
		return c.outcome(outcome.CodeUpdated)
	}

	peopleID, err := ensurePerson(ctx, tx, label, p.Department, nowMs)
	if err != nil {
		return gateway.ProcedureOutcome{}, err
	}
	res, err := tx.ExecContext(ctx, `
INSERT INTO cards(card_number, people_id, profile_id, open_date, close_date, actived, comments, updated_at_ms)
VALUES (?, ?, ?, ?, ?, 1, ?, ?);`,
		p.CardNumber, peopleID, defaultProfileID, c.openDate, c.closeDate, p.Comments, nowMs)
	if err != nil {
		return gateway.ProcedureOutcome{}, fmt.Errorf("insert card %d: %w", p.CardNumber, err)
	}
	cardID, err := res.LastInsertId()
	if err != nil {
		return gateway.ProcedureOutcome{}, fmt.Errorf("insert card %d: %w", p.CardNumber, err)
	}

	c.cardID, c.peopleID, c.profileID, c.department = cardID, peopleID, defaultProfileID, p.Department
	return c.outcome(outcome.CodeCreated)
}

// ensurePerson creates the cardholder row for a new card. The holder is named
// after the room, as the legacy procedure does.
//
// Must be called inside an existing transaction.
func ensurePerson(ctx context.Context, tx *sql.Tx, fname, department string, nowMs int64) (int64, error) {
	res, err := tx.ExecContext(ctx, `
INSERT INTO people(fname, department, created_at_ms) VALUES (?, ?, ?);`, fname, department, nowMs)
	if err != nil {
		return 0, fmt.Errorf("ensurePerson %s: %w", fname, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("ensurePerson %s: %w", fname, err)
	}
	return id, nil
}

func loadCard(ctx context.Context, tx *sql.Tx, number int64) (cardState, bool, error) {
	var c cardState
	err := tx.QueryRowContext(ctx, `
SELECT c.card_id, c.people_id, c.profile_id, p.department, c.open_date, c.close_date, c.actived
FROM cards c JOIN people p ON p.people_id = c.people_id
WHERE c.card_number = ?;`, number).Scan(
		&c.cardID, &c.peopleID, &c.profileID, &c.department, &c.openDate, &c.closeDate, &c.actived)
	if errors.Is(err, sql.ErrNoRows) {
		return cardState{}, false, nil
	}
	if err != nil {
		return cardState{}, false, fmt.Errorf("load card %d: %w", number, err)
	}
	return c, true, nil
}

// QueryCards lists cards newest first.
func (s *Store) QueryCards(ctx context.Context, f gateway.CardFilter) ([]gateway.CardRow, error) {
	var (
		where []string
		args  []any
	)
	if f.CardNumber != nil {
		where = append(where, "c.card_number = ?")
		args = append(args, *f.CardNumber)
	}

	q := `
SELECT c.card_id, c.card_number, COALESCE(p.fname, ''), c.open_date, c.close_date, c.actived, c.comments
FROM cards c LEFT JOIN people p ON p.people_id = c.people_id`
	if len(where) > 0 {
		q += "\nWHERE " + strings.Join(where, " AND ")
	}
	q += "\nORDER BY c.card_id DESC"
	if f.Limit > 0 {
		q += "\nLIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, q+";", args...)
	if err != nil {
		return nil, wrap("query_cards", err)
	}
	defer rows.Close()

	var out []gateway.CardRow
	for rows.Next() {
		var (
			r        gateway.CardRow
			from, to sql.NullString
		)
		if err := rows.Scan(&r.CardID, &r.CardNumber, &r.RoomLabel, &from, &to, &r.Active, &r.Comments); err != nil {
			return nil, wrap("query_cards", err)
		}
		r.OpenDate = parseOptionalDate(from)
		r.CloseDate = parseOptionalDate(to)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, wrap("query_cards", err)
	}
	return out, nil
}

// parseOptionalDate returns nil for NULL or unparseable values.
func parseOptionalDate(s sql.NullString) *civil.Date {
	if !s.Valid {
		return nil
	}
	d, err := civil.ParseDate(strings.TrimSpace(s.String))
	if err != nil {
		return nil
	}
	return &d
}

// RefreshCardDumps queues a controller dump refresh.
func (s *Store) RefreshCardDumps(ctx context.Context, cardNumber int64, action gateway.DumpAction) error {
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO card_dumps(card_number, action, requested_at_ms) VALUES (?, ?, ?);`,
			cardNumber, int(action), s.now().UTC().UnixMilli()); err != nil {
			return fmt.Errorf("queue dump for card %d: %w", cardNumber, err)
		}
		return nil
	})
	return wrap("refresh_card_dumps", err)
}
