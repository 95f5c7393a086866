package usecase

import (
	"context"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/oj-problem-hub/internal/domain"
)

type fakeEmbeddingRepo struct {
	blobs   map[string][]byte
	matches []domain.EmbeddingMatch
	knnErr  error
	gotK    int
	gotVec  []float32
}

func (r *fakeEmbeddingRepo) GetEmbedding(_ domain.Context, source, id string) ([]byte, error) {
	if b, ok := r.blobs[source+":"+id]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("%w: embedding %s/%s", domain.ErrNotFound, source, id)
}

func (r *fakeEmbeddingRepo) KNNSearch(_ domain.Context, vec []float32, k int) ([]domain.EmbeddingMatch, error) {
	r.gotK = k
	r.gotVec = vec
	if r.knnErr != nil {
		return nil, r.knnErr
	}
	if k < len(r.matches) {
		return r.matches[:k], nil
	}
	return r.matches, nil
}

type fakeProblemRepo struct {
	rows map[string]domain.Problem
}

func (r *fakeProblemRepo) Get(_ domain.Context, source, id string) (domain.Problem, error) {
	if p, ok := r.rows[source+":"+id]; ok {
		return p, nil
	}
	return domain.Problem{}, fmt.Errorf("%w: problem %s/%s", domain.ErrNotFound, source, id)
}

func (r *fakeProblemRepo) List(_ domain.Context, _ domain.ListParams) (domain.ListResult, error) {
	return domain.ListResult{}, nil
}
func (r *fakeProblemRepo) ListTags(_ domain.Context, _ string) ([]string, error) { return nil, nil }
func (r *fakeProblemRepo) PlatformStats(_ domain.Context) ([]domain.PlatformStat, error) {
	return nil, nil
}
func (r *fakeProblemRepo) Create(_ domain.Context, _ domain.Problem) error { return nil }
func (r *fakeProblemRepo) Update(_ domain.Context, _, _ string, _ domain.Problem) error {
	return nil
}
func (r *fakeProblemRepo) Delete(_ domain.Context, _, _ string) error { return nil }

type fakeEmbedder struct {
	vec     []float32
	err     error
	calls   int
	gotText string
}

func (e *fakeEmbedder) EmbedText(_ domain.Context, text string) ([]float32, error) {
	e.calls++
	e.gotText = text
	if e.err != nil {
		return nil, e.err
	}
	return e.vec, nil
}

func vec768(seed float32) []float32 {
	v := make([]float32, domain.EmbeddingDim)
	for i := range v {
		v[i] = seed
	}
	return v
}

func problemRow(source, id, title string) domain.Problem {
	diff := "Medium"
	link := "https://example.com/" + id
	return domain.Problem{ID: id, Source: source, Slug: id, Title: &title, Difficulty: &diff, Link: &link}
}

func newTestSimilar(overFetch int) (*SimilarService, *fakeProblemRepo, *fakeEmbeddingRepo, *fakeEmbedder) {
	problems := &fakeProblemRepo{rows: map[string]domain.Problem{}}
	embeddings := &fakeEmbeddingRepo{blobs: map[string][]byte{}}
	embedder := &fakeEmbedder{vec: vec768(0.5)}
	return NewSimilarService(problems, embeddings, embedder, overFetch), problems, embeddings, embedder
}

func TestByProblemExcludesSelfAndSortsBySimilarity(t *testing.T) {
	svc, problems, embeddings, _ := newTestSimilar(4)

	embeddings.blobs["leetcode:1"] = domain.EncodeEmbedding(vec768(0.1))
	embeddings.matches = []domain.EmbeddingMatch{
		{Source: "leetcode", ProblemID: "1", Distance: 0},
		{Source: "leetcode", ProblemID: "15", Distance: 0.1},
		{Source: "atcoder", ProblemID: "abc100_a", Distance: 0.2},
		{Source: "codeforces", ProblemID: "1A", Distance: 0.3},
	}
	problems.rows["leetcode:15"] = problemRow("leetcode", "15", "3Sum")
	problems.rows["atcoder:abc100_a"] = problemRow("atcoder", "abc100_a", "Happy Birthday!")
	problems.rows["codeforces:1A"] = problemRow("codeforces", "1A", "Theatre Square")

	got, err := svc.ByProblem(context.Background(), "leetcode", "1", SimilarQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "15", got[0].ID)
	assert.InDelta(t, 0.9, got[0].Similarity, 1e-9)
	assert.Equal(t, "abc100_a", got[1].ID)
	assert.Equal(t, "1A", got[2].ID)
	require.NotNil(t, got[0].Title)
	assert.Equal(t, "3Sum", *got[0].Title)
}

func TestByProblemWithoutEmbedding(t *testing.T) {
	svc, _, _, _ := newTestSimilar(4)
	_, err := svc.ByProblem(context.Background(), "leetcode", "404", SimilarQuery{Limit: 10})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestByProblemCorruptEmbedding(t *testing.T) {
	svc, _, embeddings, _ := newTestSimilar(4)
	embeddings.blobs["leetcode:1"] = []byte("not-a-vector")
	_, err := svc.ByProblem(context.Background(), "leetcode", "1", SimilarQuery{Limit: 10})
	require.ErrorIs(t, err, domain.ErrInternal)
}

func TestSearchThresholdAndSourceFilter(t *testing.T) {
	svc, problems, embeddings, _ := newTestSimilar(4)

	embeddings.blobs["leetcode:1"] = domain.EncodeEmbedding(vec768(0.1))
	embeddings.matches = []domain.EmbeddingMatch{
		{Source: "leetcode", ProblemID: "15", Distance: 0.1},  // 0.9
		{Source: "atcoder", ProblemID: "x", Distance: 0.2},    // 0.8, wrong source
		{Source: "leetcode", ProblemID: "16", Distance: 0.4},  // 0.6, below threshold
		{Source: "leetcode", ProblemID: "18", Distance: math.NaN()},
	}
	problems.rows["leetcode:15"] = problemRow("leetcode", "15", "3Sum")
	problems.rows["atcoder:x"] = problemRow("atcoder", "x", "X")
	problems.rows["leetcode:16"] = problemRow("leetcode", "16", "3Sum Closest")
	problems.rows["leetcode:18"] = problemRow("leetcode", "18", "4Sum")

	got, err := svc.ByProblem(context.Background(), "leetcode", "1", SimilarQuery{
		Limit:     10,
		Threshold: 0.75,
		Sources:   []string{"leetcode"},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "15", got[0].ID)
}

func TestSearchOverFetchIsCapped(t *testing.T) {
	svc, _, embeddings, _ := newTestSimilar(4)
	embeddings.blobs["leetcode:1"] = domain.EncodeEmbedding(vec768(0.1))

	_, err := svc.ByProblem(context.Background(), "leetcode", "1", SimilarQuery{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, 40, embeddings.gotK)

	svc5, _, embeddings5, _ := newTestSimilar(5)
	embeddings5.blobs["leetcode:1"] = domain.EncodeEmbedding(vec768(0.1))
	_, err = svc5.ByProblem(context.Background(), "leetcode", "1", SimilarQuery{Limit: 50})
	require.NoError(t, err)
	assert.Equal(t, knnCap, embeddings5.gotK)
}

func TestSearchSkipsStaleEmbeddings(t *testing.T) {
	svc, problems, embeddings, _ := newTestSimilar(4)

	embeddings.blobs["leetcode:1"] = domain.EncodeEmbedding(vec768(0.1))
	embeddings.matches = []domain.EmbeddingMatch{
		{Source: "leetcode", ProblemID: "deleted", Distance: 0.05},
		{Source: "leetcode", ProblemID: "15", Distance: 0.1},
	}
	problems.rows["leetcode:15"] = problemRow("leetcode", "15", "3Sum")

	got, err := svc.ByProblem(context.Background(), "leetcode", "1", SimilarQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "15", got[0].ID)
}

func TestSearchHonorsLimit(t *testing.T) {
	svc, problems, embeddings, _ := newTestSimilar(4)

	embeddings.blobs["leetcode:1"] = domain.EncodeEmbedding(vec768(0.1))
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("p%d", i)
		embeddings.matches = append(embeddings.matches, domain.EmbeddingMatch{
			Source: "leetcode", ProblemID: id, Distance: 0.1 + float64(i)*0.05,
		})
		problems.rows["leetcode:"+id] = problemRow("leetcode", id, id)
	}

	got, err := svc.ByProblem(context.Background(), "leetcode", "1", SimilarQuery{Limit: 2})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "p0", got[0].ID)
	assert.Equal(t, "p1", got[1].ID)
}

func TestByTextValidatesLength(t *testing.T) {
	svc, _, _, embedder := newTestSimilar(4)
	ctx := context.Background()

	_, err := svc.ByText(ctx, "  a  ", SimilarQuery{Limit: 10})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = svc.ByText(ctx, strings.Repeat("x", byTextMaxBytes+1), SimilarQuery{Limit: 10})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	assert.Equal(t, 0, embedder.calls, "invalid text never reaches the embedder")
}

func TestByTextEmbedsAndSearches(t *testing.T) {
	svc, problems, embeddings, embedder := newTestSimilar(4)

	embeddings.matches = []domain.EmbeddingMatch{
		{Source: "leetcode", ProblemID: "15", Distance: 0.1},
	}
	problems.rows["leetcode:15"] = problemRow("leetcode", "15", "3Sum")

	got, err := svc.ByText(context.Background(), "  three numbers summing to zero  ", SimilarQuery{Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "three numbers summing to zero", embedder.gotText)
	assert.Equal(t, embedder.vec, embeddings.gotVec)
}

func TestByTextEmbedderErrorPropagates(t *testing.T) {
	svc, _, _, embedder := newTestSimilar(4)
	embedder.err = fmt.Errorf("%w: embedder timed out", domain.ErrUpstreamTimeout)

	_, err := svc.ByText(context.Background(), "a valid query text", SimilarQuery{Limit: 10})
	require.ErrorIs(t, err, domain.ErrUpstreamTimeout)
}

func TestSearchZeroLimitShortCircuits(t *testing.T) {
	svc, _, embeddings, _ := newTestSimilar(4)
	embeddings.blobs["leetcode:1"] = domain.EncodeEmbedding(vec768(0.1))

	got, err := svc.ByProblem(context.Background(), "leetcode", "1", SimilarQuery{Limit: 0})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Zero(t, embeddings.gotK, "no query runs for a zero limit")
}
