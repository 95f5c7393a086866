// Package postgres provides the PostgreSQL adapters behind the
// catalog's repository ports. Reads run against a read-only pool,
// writes against a separate read-write pool; similarity search uses
// the pgvector extension.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PgxPool is a minimal subset of pgxpool used by the repos for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"
