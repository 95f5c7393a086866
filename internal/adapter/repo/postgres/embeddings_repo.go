package postgres

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/oj-problem-hub/internal/domain"
)

// EmbeddingRepo reads problem embeddings. The embedding column holds
// the raw blob the build helper wrote; embedding_vec mirrors it as a
// pgvector value for index-backed kNN.
type EmbeddingRepo struct{ Pool PgxPool }

// NewEmbeddingRepo constructs an EmbeddingRepo with the given pool.
func NewEmbeddingRepo(p PgxPool) *EmbeddingRepo { return &EmbeddingRepo{Pool: p} }

// GetEmbedding returns the raw stored blob for (source, id).
func (r *EmbeddingRepo) GetEmbedding(ctx domain.Context, source, id string) ([]byte, error) {
	tracer := otel.Tracer("repo.embeddings")
	ctx, span := tracer.Start(ctx, "embeddings.Get")
	defer span.End()

	q := `SELECT embedding FROM problem_embeddings WHERE source=$1 AND problem_id=$2`
	var blob []byte
	if err := r.Pool.QueryRow(ctx, q, source, id).Scan(&blob); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("op=embedding.get: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("op=embedding.get: %w", err)
	}
	return blob, nil
}

// KNNSearch returns the k nearest neighbours of vector by cosine
// distance, closest first.
func (r *EmbeddingRepo) KNNSearch(ctx domain.Context, vector []float32, k int) ([]domain.EmbeddingMatch, error) {
	tracer := otel.Tracer("repo.embeddings")
	ctx, span := tracer.Start(ctx, "embeddings.KNNSearch")
	defer span.End()
	span.SetAttributes(attribute.Int("embeddings.k", k))

	if k <= 0 {
		return []domain.EmbeddingMatch{}, nil
	}

	q := `SELECT source, problem_id, (embedding_vec <=> $1::vector)::float8 AS distance
	      FROM problem_embeddings
	      WHERE embedding_vec IS NOT NULL
	      ORDER BY embedding_vec <=> $1::vector
	      LIMIT $2`
	rows, err := r.Pool.Query(ctx, q, vectorLiteral(vector), k)
	if err != nil {
		return nil, fmt.Errorf("op=embedding.knn: %w", err)
	}
	defer rows.Close()

	matches := make([]domain.EmbeddingMatch, 0, k)
	for rows.Next() {
		var m domain.EmbeddingMatch
		if err := rows.Scan(&m.Source, &m.ProblemID, &m.Distance); err != nil {
			return nil, fmt.Errorf("op=embedding.knn_scan: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=embedding.knn_rows: %w", err)
	}
	return matches, nil
}

// vectorLiteral renders a float32 vector in pgvector's input syntax.
// Values are bound as a parameter and cast server-side, so no SQL is
// built from them.
func vectorLiteral(vec []float32) string {
	var b strings.Builder
	b.Grow(len(vec)*10 + 2)
	b.WriteByte('[')
	for i, f := range vec {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}
