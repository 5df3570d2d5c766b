package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/guard-e/hostel/internal/hostel/access"
)

// ErrUserNotFound is returned by the account maintenance methods.
var ErrUserNotFound = errors.New("user not found")

const identityColumns = `user_id, name, flags, sflags`

func scanIdentity(row *sql.Row) (*access.IdentityRecord, error) {
	var rec access.IdentityRecord
	err := row.Scan(&rec.UserID, &rec.Name, &rec.Flags, &rec.SFlags)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// AuthenticateIdentity looks a staff account up by name. It does not check
// any credential.
func (s *Store) AuthenticateIdentity(ctx context.Context, username string) (*access.IdentityRecord, error) {
	rec, err := scanIdentity(s.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM users WHERE name = ?;`, strings.TrimSpace(username)))
	if err != nil {
		return nil, wrap("authenticate_identity", err)
	}
	return rec, nil
}

func (s *Store) IdentityByID(ctx context.Context, userID int64) (*access.IdentityRecord, error) {
	rec, err := scanIdentity(s.db.QueryRowContext(ctx,
		`SELECT `+identityColumns+` FROM users WHERE user_id = ?;`, userID))
	if err != nil {
		return nil, wrap("identity_by_id", err)
	}
	return rec, nil
}

// PasswordHash returns the stored bcrypt hash, or "" for unknown users.
func (s *Store) PasswordHash(ctx context.Context, username string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE name = ?;`, username).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", wrap("password_hash", err)
	}
	return hash, nil
}

// CreateUser adds a staff account and returns its id.
func (s *Store) CreateUser(ctx context.Context, name string, flags, sflags int, passwordHash string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, errors.New("user name is required")
	}

	var id int64
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		nowMs := s.now().UTC().UnixMilli()
		res, err := tx.ExecContext(ctx, `
INSERT INTO users(name, flags, sflags, password_hash, created_at_ms, updated_at_ms)
VALUES (?, ?, ?, ?, ?, ?);`, name, flags, sflags, passwordHash, nowMs, nowMs)
		if err != nil {
			return fmt.Errorf("create user %s: %w", name, err)
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, wrap("create_user", err)
	}
	return id, nil
}

// SetPassword replaces the password hash of an existing account.
func (s *Store) SetPassword(ctx context.Context, name, passwordHash string) error {
	return s.updateUser(ctx, name, `UPDATE users SET password_hash = ?, updated_at_ms = ? WHERE name = ?;`, passwordHash)
}

// SetFlags replaces the permission flags of an existing account.
func (s *Store) SetFlags(ctx context.Context, name string, flags int) error {
	return s.updateUser(ctx, name, `UPDATE users SET flags = ?, updated_at_ms = ? WHERE name = ?;`, flags)
}

func (s *Store) updateUser(ctx context.Context, name, query string, value any) error {
	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, value, s.now().UTC().UnixMilli(), strings.TrimSpace(name))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrUserNotFound, name)
		}
		return nil
	})
	if errors.Is(err, ErrUserNotFound) {
		return err
	}
	return wrap("update_user", err)
}
