package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/fairyhunter13/oj-problem-hub/internal/adapter/observability"
	"github.com/fairyhunter13/oj-problem-hub/internal/domain"
)

const (
	// knnCap bounds how many candidates one query may pull from the
	// vector index regardless of limit and over-fetch settings.
	knnCap = 200

	byTextMinBytes = 3
	byTextMaxBytes = 2000
)

// SimilarQuery narrows a similarity search. Limit is assumed clamped
// by the caller; Sources empty means all sources.
type SimilarQuery struct {
	Limit     int
	Threshold float64
	Sources   []string
}

// SimilarService answers nearest-neighbour queries over the problem
// embeddings, either seeded by an existing problem or by free text run
// through the one-shot embedder.
type SimilarService struct {
	problems   domain.ProblemRepository
	embeddings domain.EmbeddingRepository
	embedder   domain.TextEmbedder
	overFetch  int
}

func NewSimilarService(problems domain.ProblemRepository, embeddings domain.EmbeddingRepository, embedder domain.TextEmbedder, overFetch int) *SimilarService {
	if overFetch < 1 {
		overFetch = 1
	}
	return &SimilarService{problems: problems, embeddings: embeddings, embedder: embedder, overFetch: overFetch}
}

// ByProblem finds problems similar to an already-embedded one. The
// seed problem itself is excluded from the results.
func (s *SimilarService) ByProblem(ctx context.Context, source, id string, q SimilarQuery) ([]domain.SimilarProblem, error) {
	observability.ObserveSimilarQuery("by_problem")

	blob, err := s.embeddings.GetEmbedding(ctx, source, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("%w: no embedding for this problem", domain.ErrNotFound)
		}
		return nil, err
	}
	vec, err := domain.DecodeEmbedding(blob)
	if err != nil {
		return nil, err
	}
	return s.search(ctx, vec, q, source, id)
}

// ByText embeds free text and finds the problems nearest to it. The
// text must be 3..2000 bytes after trimming.
func (s *SimilarService) ByText(ctx context.Context, text string, q SimilarQuery) ([]domain.SimilarProblem, error) {
	observability.ObserveSimilarQuery("by_text")

	text = strings.TrimSpace(text)
	if len(text) < byTextMinBytes || len(text) > byTextMaxBytes {
		return nil, fmt.Errorf("%w: text must be between %d and %d bytes", domain.ErrInvalidArgument, byTextMinBytes, byTextMaxBytes)
	}
	vec, err := s.embedder.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}
	return s.search(ctx, vec, q, "", "")
}

// search runs the kNN query with over-fetch, filters and hydrates the
// hits, and returns at most q.Limit rows sorted by similarity.
func (s *SimilarService) search(ctx context.Context, vec []float32, q SimilarQuery, selfSource, selfID string) ([]domain.SimilarProblem, error) {
	if q.Limit <= 0 {
		return []domain.SimilarProblem{}, nil
	}
	k := q.Limit * s.overFetch
	if k > knnCap {
		k = knnCap
	}

	matches, err := s.embeddings.KNNSearch(ctx, vec, k)
	if err != nil {
		return nil, err
	}

	allowed := make(map[string]bool, len(q.Sources))
	for _, src := range q.Sources {
		allowed[src] = true
	}

	out := make([]domain.SimilarProblem, 0, q.Limit)
	for _, m := range matches {
		if m.Source == selfSource && m.ProblemID == selfID {
			continue
		}
		sim := 1 - m.Distance
		if math.IsNaN(sim) || sim < q.Threshold {
			continue
		}
		if len(allowed) > 0 && !allowed[m.Source] {
			continue
		}
		p, err := s.problems.Get(ctx, m.Source, m.ProblemID)
		if errors.Is(err, domain.ErrNotFound) {
			// the embedding outlived its problem row; skip it
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, domain.SimilarProblem{
			Source:     m.Source,
			ID:         m.ProblemID,
			Title:      p.Title,
			Difficulty: p.Difficulty,
			Link:       p.Link,
			Similarity: sim,
		})
		if len(out) == q.Limit {
			break
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Similarity > out[j].Similarity })
	return out, nil
}
