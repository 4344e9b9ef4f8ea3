// Package postgres implements the store interfaces on PostgreSQL with pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ems-calendar/backend/internal/store"
	"github.com/ems-calendar/backend/pkg/database"
)

// DB binds repositories to a pool or to one of its transactions.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a transactor over pool.
func New(pool *pgxpool.Pool) *DB {
	return &DB{pool: pool}
}

// Stores returns pool-bound stores.
func (d *DB) Stores() store.Stores {
	return bind(d.pool)
}

// WithinTx runs fn in one transaction; it commits when fn returns nil and rolls back otherwise.
func (d *DB) WithinTx(ctx context.Context, fn func(s store.Stores) error) error {
	return pgx.BeginTxFunc(ctx, d.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(bind(tx))
	})
}

// Users returns the pool-bound user repository.
func (d *DB) Users() *Users {
	return &Users{db: d.pool}
}

func bind(db database.DBTX) store.Stores {
	return store.Stores{
		Events:    &Events{db: db},
		Versions:  &Versions{db: db},
		Changelog: &Changelog{db: db},
		Grants:    &Grants{db: db},
		Users:     &Users{db: db},
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func noRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func writeErr(op string, err error) error {
	if database.IsUniqueViolation(err) {
		return fmt.Errorf("%s: %w", op, store.ErrDuplicate)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// jsonArg encodes v for a jsonb column, mapping nil to NULL.
func jsonArg[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}
