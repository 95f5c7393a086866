package postgres_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/oj-problem-hub/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/oj-problem-hub/internal/domain"
)

func TestEmbeddingRepo_GetEmbedding(t *testing.T) {
	blob := []byte{0, 0, 128, 63} // 1.0 little-endian
	pool := &poolStub{row: scanRow(blob)}
	repo := postgres.NewEmbeddingRepo(pool)

	got, err := repo.GetEmbedding(context.Background(), "leetcode", "1")
	require.NoError(t, err)
	assert.Equal(t, blob, got)
	assert.Equal(t, []any{"leetcode", "1"}, pool.args[0])
}

func TestEmbeddingRepo_GetEmbeddingNotFound(t *testing.T) {
	pool := &poolStub{row: errRow(pgx.ErrNoRows)}
	repo := postgres.NewEmbeddingRepo(pool)

	_, err := repo.GetEmbedding(context.Background(), "leetcode", "404")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "op=embedding.get")
}

func TestEmbeddingRepo_KNNSearch(t *testing.T) {
	pool := &poolStub{rows: &rowsStub{rows: [][]any{
		{"leetcode", "1", 0.0},
		{"codeforces", "1A", 0.25},
	}}}
	repo := postgres.NewEmbeddingRepo(pool)

	matches, err := repo.KNNSearch(context.Background(), []float32{0.5, -1.25, 2}, 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, domain.EmbeddingMatch{Source: "codeforces", ProblemID: "1A", Distance: 0.25}, matches[1])

	require.Len(t, pool.args, 1)
	assert.Equal(t, "[0.5,-1.25,2]", pool.args[0][0])
	assert.Equal(t, 10, pool.args[0][1])
	assert.Contains(t, pool.sql[0], "embedding_vec <=> $1::vector")
	assert.Contains(t, pool.sql[0], "ORDER BY embedding_vec <=> $1::vector")
}

func TestEmbeddingRepo_KNNSearchZeroK(t *testing.T) {
	pool := &poolStub{}
	repo := postgres.NewEmbeddingRepo(pool)

	matches, err := repo.KNNSearch(context.Background(), []float32{1}, 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Empty(t, pool.sql, "no query should run for k<=0")
}

func TestEmbeddingRepo_KNNSearchQueryError(t *testing.T) {
	pool := &poolStub{queryErr: assert.AnError}
	repo := postgres.NewEmbeddingRepo(pool)

	_, err := repo.KNNSearch(context.Background(), []float32{1}, 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=embedding.knn")
}
