package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Pinger is the minimal interface for a database pool capable of Ping.
type Pinger interface{ Ping(ctx context.Context) error }

// RowQuerier is the minimal query interface the dimension probe needs.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// BuildHealthChecks returns the two health probes: a read-pool ping and
// a stored-embedding dimension probe. The probe reports 0 when the
// embeddings table is empty, which passes.
func BuildHealthChecks(pool interface {
	Pinger
	RowQuerier
}) (func(ctx context.Context) error, func(ctx context.Context) (int64, error)) {
	dbCheck := func(ctx context.Context) error {
		if pool == nil {
			return fmt.Errorf("db not configured")
		}
		return pool.Ping(ctx)
	}
	dimCheck := func(ctx context.Context) (int64, error) {
		if pool == nil {
			return 0, fmt.Errorf("db not configured")
		}
		var dim int64
		q := `SELECT vector_dims(embedding_vec) FROM problem_embeddings WHERE embedding_vec IS NOT NULL LIMIT 1`
		err := pool.QueryRow(ctx, q).Scan(&dim)
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		if err != nil {
			return 0, err
		}
		return dim, nil
	}
	return dbCheck, dimCheck
}
