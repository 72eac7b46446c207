// Package sqlite implements the failure journal using SQLite via modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/eugener/beacon/internal/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

const pragmas = "_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"

var _ storage.Store = (*Store)(nil)

// Store implements storage.Store using SQLite. Inserts come from the single
// delivery worker and the pruner, so one writer connection is enough;
// listings use a small read pool.
type Store struct {
	write *sql.DB
	read  *sql.DB
}

// New opens a SQLite database, runs migrations, and returns a Store.
// dsn is a file path or ":memory:".
func New(dsn string) (*Store, error) {
	full := "file:" + dsn + "?" + pragmas
	if dsn == ":memory:" {
		// Shared cache so both pools see the same in-memory database.
		full = "file::memory:?mode=memory&cache=shared&" + pragmas
	}

	write, err := openPool(full, 1)
	if err != nil {
		return nil, fmt.Errorf("open write db: %w", err)
	}
	read, err := openPool(full, 2)
	if err != nil {
		write.Close()
		return nil, fmt.Errorf("open read db: %w", err)
	}

	if err := migrate(write); err != nil {
		errors.Join(write.Close(), read.Close())
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return &Store{write: write, read: read}, nil
}

func openPool(dsn string, maxOpen int) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxOpen)
	return db, nil
}

// migrate applies embedded SQL migrations using goose.
func migrate(db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("sub fs: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}
	_, err = provider.Up(context.Background())
	return err
}

// Ping verifies database connectivity through the read pool.
func (s *Store) Ping(ctx context.Context) error {
	return s.read.PingContext(ctx)
}

// Close closes both database pools.
func (s *Store) Close() error {
	return errors.Join(s.write.Close(), s.read.Close())
}
