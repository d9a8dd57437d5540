// Package postgres implements the storage contracts on PostgreSQL via
// database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq" // PostgreSQL driver, registered on import

	"github.com/pefandor/pravda-market/params"
	"github.com/pefandor/pravda-market/pkg/core"
	"github.com/pefandor/pravda-market/pkg/storage"
)

// executor lets the same query code run on *sql.DB and *sql.Tx.
type executor interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// queries holds every Querier method; the executor decides whether calls
// autocommit or join a transaction.
type queries struct {
	ex executor
}

type Store struct {
	queries
	db *sql.DB
}

var _ storage.Store = (*Store)(nil)

// Open connects, configures the pool and initializes the schema.
func Open(ctx context.Context, cfg params.Database) (*Store, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, core.Wrap(core.KindStorageUnavailable, "open database", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, core.Wrap(core.KindStorageUnavailable, "ping database", err)
	}

	s := &Store{queries: queries{ex: db}, db: db}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return core.Wrap(core.KindStorageUnavailable, "ping database", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

// WithinTx runs fn in one transaction, committing on nil and rolling back
// on error or panic.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, q storage.Querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.Wrap(core.KindStorageUnavailable, "begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, &queries{ex: tx}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return core.Wrap(core.KindStorageUnavailable, "commit transaction", err)
	}
	return nil
}

// mapErr translates driver errors into the domain taxonomy. Unique
// violations become Conflict so duplicate chain hashes read as no-ops.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return core.Errorf(core.KindNotFound, "%s: not found", op)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return core.Wrap(core.KindConflict, fmt.Sprintf("%s: duplicate", op), err)
	}
	return core.Wrap(core.KindStorageUnavailable, op, err)
}
