// Package sqlite implements the card store on an embedded SQLite database.
// The card procedure runs as one transaction on the db.Worker.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	dbpkg "github.com/guard-e/hostel/internal/db"
	"github.com/guard-e/hostel/internal/hostel/gateway"
)

// Store implements gateway.Store.
type Store struct {
	db     *sql.DB
	writer *dbpkg.Worker
	now    func() time.Time
}

var _ gateway.Store = (*Store)(nil)

func New(db *sql.DB, writer *dbpkg.Worker) *Store {
	return &Store{db: db, writer: writer, now: time.Now}
}

// SetClock replaces the clock used for default dates and timestamps.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

func (s *Store) Ping(ctx context.Context) error {
	return wrap("ping", s.db.PingContext(ctx))
}

// Close stops the writer. The *sql.DB belongs to the caller.
func (s *Store) Close() error {
	s.writer.Close()
	return nil
}

func wrap(op string, err error) error {
	return gateway.Wrap(op, err, classify)
}

// classify maps SQLite result codes to gateway kinds.
func classify(err error) (gateway.Kind, bool) {
	switch {
	case errors.Is(err, dbpkg.ErrWorkerClosed), errors.Is(err, sql.ErrConnDone):
		return gateway.KindConnectivity, true
	}

	var se *msqlite.Error
	if !errors.As(err, &se) {
		return 0, false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_INTERRUPT:
		return gateway.KindTimeout, true
	case sqlite3.SQLITE_PERM, sqlite3.SQLITE_AUTH, sqlite3.SQLITE_READONLY:
		return gateway.KindPermissionDenied, true
	case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_NOTADB:
		return gateway.KindConnectivity, true
	default:
		return gateway.KindUnknown, true
	}
}
