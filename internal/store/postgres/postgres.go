// Package postgres implements the store interfaces on PostgreSQL. Nested
// document data (photos, order items, history, addresses) is kept in JSONB
// columns so each entity reads and writes as a single row, mirroring the
// document layout the service is specified against.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/organoz/village-market/internal/store"
)

// Store bundles the per-entity repositories over a single pool.
type Store struct {
	Tenants      *TenantRepo
	Users        *UserRepo
	Products     *ProductRepo
	Orders       *OrderRepo
	Applications *ApplicationRepo
}

// New constructs all repositories over the provided pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{
		Tenants:      &TenantRepo{pool: pool},
		Users:        &UserRepo{pool: pool},
		Products:     &ProductRepo{pool: pool},
		Orders:       &OrderRepo{pool: pool},
		Applications: &ApplicationRepo{pool: pool},
	}
}

const (
	uniqueViolation = "23505"
	// invalidTextRep is raised by the id = $1::uuid casts when the path
	// parameter is not a uuid.
	invalidTextRep = "22P02"
)

// errNoRows lets Exec-based updates reuse the not-found mapping.
var errNoRows = pgx.ErrNoRows

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case uniqueViolation:
			return fmt.Errorf("%s: %w", op, store.ErrDuplicate)
		case invalidTextRep:
			return fmt.Errorf("%s: %w", op, store.ErrInvalidID)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func toJSON(v any) []byte {
	if v == nil {
		return []byte("{}")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}

func fromJSON(data []byte, dst any) {
	if len(data) == 0 {
		return
	}
	_ = json.Unmarshal(data, dst)
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}
