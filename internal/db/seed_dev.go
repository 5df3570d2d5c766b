package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SeedUser is a staff account created by SeedDev.
type SeedUser struct {
	Name         string
	Flags        int
	PasswordHash string
}

type SeedDevOptions struct {
	Users []SeedUser
}

// SeedDev creates the given staff accounts if they do not exist yet. Existing
// accounts keep their flags and password.
func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) error {
	now := time.Now().UTC().UnixMilli()

	for _, u := range opt.Users {
		name := strings.TrimSpace(u.Name)
		if name == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, `
INSERT INTO users(name, flags, sflags, password_hash, created_at_ms, updated_at_ms)
VALUES (?, ?, 0, ?, ?, ?)
ON CONFLICT(name) DO NOTHING;`, name, u.Flags, u.PasswordHash, now, now); err != nil {
			return fmt.Errorf("seed user %s: %w", name, err)
		}
	}
	return nil
}
