package httpserver

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/fairyhunter13/oj-problem-hub/internal/domain"
	"github.com/fairyhunter13/oj-problem-hub/internal/usecase"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100

	defaultSimilarLimit = 10
	maxSimilarLimit     = 50
)

var (
	validSortBy    = []string{"id", "difficulty", "rating", "ac_rate"}
	validSortOrder = []string{"asc", "desc"}
	validTagModes  = []string{"any", "all"}
)

func oneOf(valid []string, s string) bool {
	for _, v := range valid {
		if v == s {
			return true
		}
	}
	return false
}

// splitCSV splits a comma-separated parameter, trimming entries and
// dropping empty ones.
func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseListParams reads and validates the problem listing query.
func parseListParams(r *http.Request, source string) (domain.ListParams, error) {
	q := r.URL.Query()
	p := domain.ListParams{
		Source:     source,
		Page:       1,
		PerPage:    defaultPerPage,
		Difficulty: q.Get("difficulty"),
		Tags:       splitCSV(q.Get("tags")),
		TagMode:    "any",
		Search:     q.Get("search"),
		SortBy:     q.Get("sort_by"),
		SortOrder:  q.Get("sort_order"),
	}

	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, fmt.Errorf("%w: invalid page: %s", domain.ErrInvalidArgument, v)
		}
		if n > 0 {
			p.Page = n
		}
	}
	if v := q.Get("per_page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return p, fmt.Errorf("%w: invalid per_page: %s", domain.ErrInvalidArgument, v)
		}
		switch {
		case n < 1:
			p.PerPage = 1
		case n > maxPerPage:
			p.PerPage = maxPerPage
		default:
			p.PerPage = n
		}
	}
	if p.SortBy != "" && !oneOf(validSortBy, p.SortBy) {
		return p, fmt.Errorf("%w: invalid sort_by: %s", domain.ErrInvalidArgument, p.SortBy)
	}
	if p.SortOrder != "" && !oneOf(validSortOrder, p.SortOrder) {
		return p, fmt.Errorf("%w: invalid sort_order: %s", domain.ErrInvalidArgument, p.SortOrder)
	}
	if v := q.Get("tag_mode"); v != "" {
		if !oneOf(validTagModes, v) {
			return p, fmt.Errorf("%w: invalid tag_mode: %s", domain.ErrInvalidArgument, v)
		}
		p.TagMode = v
	}
	if v := q.Get("rating_min"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, fmt.Errorf("%w: invalid rating_min: %s", domain.ErrInvalidArgument, v)
		}
		p.RatingMin = &f
	}
	if v := q.Get("rating_max"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return p, fmt.Errorf("%w: invalid rating_max: %s", domain.ErrInvalidArgument, v)
		}
		p.RatingMax = &f
	}
	if p.RatingMin != nil && p.RatingMax != nil && *p.RatingMin > *p.RatingMax {
		return p, fmt.Errorf("%w: rating_min must be <= rating_max", domain.ErrInvalidArgument)
	}
	return p, nil
}

// parseSimilarQuery reads the shared similarity parameters. The limit
// is clamped to 0..50, not rejected; threshold defaults to 0 so every
// non-negative similarity passes.
func parseSimilarQuery(r *http.Request) (usecase.SimilarQuery, error) {
	q := r.URL.Query()
	sq := usecase.SimilarQuery{
		Limit:   defaultSimilarLimit,
		Sources: splitCSV(q.Get("source")),
	}

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return sq, fmt.Errorf("%w: invalid limit: %s", domain.ErrInvalidArgument, v)
		}
		switch {
		case n < 0:
			sq.Limit = 0
		case n > maxSimilarLimit:
			sq.Limit = maxSimilarLimit
		default:
			sq.Limit = n
		}
	}
	if v := q.Get("threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return sq, fmt.Errorf("%w: invalid threshold: %s", domain.ErrInvalidArgument, v)
		}
		sq.Threshold = f
	}
	return sq, nil
}
