// Package store is the Postgres-backed repository for competitions,
// tickets and entries. It assumes a transactional row store with
// SELECT ... FOR UPDATE semantics, per spec §1's explicit external
// dependency on the database engine.
package store

import (
	"context"
	"embed"
	"fmt"

	"github.com/go-errors/errors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v4/pgxpool"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a pgx connection pool the way channeldb.DB wraps a bbolt
// handle: one object, opened once at startup, handed to every
// repository.
type DB struct {
	Pool *pgxpool.Pool
}

// Open connects to Postgres and runs any pending migrations. It returns
// an error suitable for the §6 exit-code-2 (migration failure) path.
func Open(ctx context.Context, dsn string) (*DB, error) {
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, errors.Errorf("connecting to database: %w", err)
	}

	if err := runMigrations(dsn); err != nil {
		pool.Close()
		return nil, errors.Errorf("running migrations: %w", err)
	}

	return &DB{Pool: pool}, nil
}

func runMigrations(dsn string) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// Close releases the connection pool. Safe to call during the SIGTERM
// drain after the watcher's final tick has committed.
func (db *DB) Close() {
	db.Pool.Close()
}

// WithTx runs fn inside a single transaction, committing on success and
// rolling back on any returned error. Handlers use this for both halves
// of the read-then-write split described in §5 ("a handler opens a
// transaction, reads, releases, performs external I/O, then opens a
// second transaction to commit the result").
func (db *DB) WithTx(ctx context.Context, fn func(ctx context.Context, tx pgxTx) error) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return err
	}

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%v (rollback also failed: %v)", err, rbErr)
		}
		return err
	}

	return tx.Commit(ctx)
}
