package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/oj-problem-hub/internal/config"
	"github.com/fairyhunter13/oj-problem-hub/internal/domain"
	"github.com/fairyhunter13/oj-problem-hub/internal/usecase"
	"github.com/fairyhunter13/oj-problem-hub/pkg/textx"
)

// Version is the build version stamped via -ldflags; it shows up in the
// status endpoint.
var Version = "dev"

// Server aggregates handler dependencies. Problems reads through the
// read pool; ProblemsRW is the same repository over the write pool and
// serves only the admin CRUD.
type Server struct {
	Cfg        config.Config
	Problems   domain.ProblemRepository
	ProblemsRW domain.ProblemRepository
	Daily      *usecase.DailyService
	Similar    *usecase.SimilarService
	Crawlers   *usecase.CrawlerService
	Embeddings *usecase.EmbeddingService
	Tokens     domain.TokenRepository
	Settings   domain.SettingsRepository
	TokenAuth  *TokenAuth
	DBCheck    func(ctx context.Context) error
	DimCheck   func(ctx context.Context) (int64, error)
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// listMeta and listEnvelope shape the paginated listing response.
type listMeta struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PerPage    int   `json:"per_page"`
	TotalPages int64 `json:"total_pages"`
}

type listEnvelope struct {
	Data []domain.ProblemSummary `json:"data"`
	Meta listMeta                `json:"meta"`
}

// DailyHandler serves the daily challenge, kicking off a fallback fetch
// when today's row is missing.
func (s *Server) DailyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		site := q.Get("domain")
		if site == "" {
			site = "com"
		}

		ch, retryAfter, err := s.Daily.Get(r.Context(), site, q.Get("date"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if retryAfter > 0 {
			writeJSON(w, http.StatusAccepted, map[string]any{
				"status":      "fetching",
				"retry_after": retryAfter,
			})
			return
		}
		writeJSON(w, http.StatusOK, ch)
	}
}

// SimilarByProblemHandler finds neighbours of an already-embedded
// problem.
func (s *Server) SimilarByProblemHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sq, err := parseSimilarQuery(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		results, err := s.Similar.ByProblem(r.Context(), chi.URLParam(r, "source"), chi.URLParam(r, "id"), sq)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, results)
	}
}

// SimilarByTextHandler embeds free text and finds its neighbours.
func (s *Server) SimilarByTextHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("query")
		if query == "" {
			writeProblem(w, http.StatusBadRequest, "query parameter is required")
			return
		}
		sq, err := parseSimilarQuery(r)
		if err != nil {
			writeError(w, r, err)
			return
		}

		text := sanitizeQuery(query)
		if len(text) < 3 {
			writeProblem(w, http.StatusBadRequest, "query must be at least 3 characters")
			return
		}
		if len(text) > 2000 {
			writeProblem(w, http.StatusBadRequest, "query must be at most 2000 characters")
			return
		}

		results, err := s.Similar.ByText(r.Context(), text, sq)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, results)
	}
}

// GetProblemHandler returns one catalog row.
func (s *Server) GetProblemHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source := chi.URLParam(r, "source")
		if _, err := domain.ParseSource(source); err != nil {
			writeProblem(w, http.StatusBadRequest, fmt.Sprintf("invalid source: %s", source))
			return
		}
		p, err := s.Problems.Get(r.Context(), source, chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				writeProblem(w, http.StatusNotFound, "problem not found")
				return
			}
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// ListProblemsHandler returns a filtered, paginated listing.
func (s *Server) ListProblemsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source := chi.URLParam(r, "source")
		if _, err := domain.ParseSource(source); err != nil {
			writeProblem(w, http.StatusBadRequest, fmt.Sprintf("invalid source: %s", source))
			return
		}
		params, err := parseListParams(r, source)
		if err != nil {
			writeError(w, r, err)
			return
		}
		res, err := s.Problems.List(r.Context(), params)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, listEnvelope{
			Data: res.Data,
			Meta: listMeta{
				Total:      res.Total,
				Page:       res.Page,
				PerPage:    res.PerPage,
				TotalPages: res.TotalPages,
			},
		})
	}
}

// ListTagsHandler returns the distinct tags of a source.
func (s *Server) ListTagsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source := chi.URLParam(r, "source")
		if _, err := domain.ParseSource(source); err != nil {
			writeProblem(w, http.StatusBadRequest, fmt.Sprintf("invalid source: %s", source))
			return
		}
		tags, err := s.Problems.ListTags(r.Context(), source)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tags)
	}
}

// ResolveHandler maps a free-form identifier (URL, source:id pair or
// bare id) to its platform and catalog row when present.
func (s *Server) ResolveHandler() http.HandlerFunc {
	type resolveResponse struct {
		Source  string          `json:"source"`
		ID      string          `json:"id"`
		Problem *domain.Problem `json:"problem"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		raw := chi.URLParam(r, "*")
		if decoded, err := url.PathUnescape(raw); err == nil {
			raw = decoded
		}
		source, id := domain.DetectSource(raw)

		resp := resolveResponse{Source: source, ID: id}
		p, err := s.Problems.Get(r.Context(), source, id)
		switch {
		case err == nil:
			resp.Problem = &p
		case !errors.Is(err, domain.ErrNotFound):
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// StatusHandler reports the build version and per-platform catalog
// coverage.
func (s *Server) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		platforms, err := s.Problems.PlatformStats(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"version":   Version,
			"platforms": platforms,
		})
	}
}

// HealthzHandler pings the read pool and probes the stored embedding
// dimension. An empty embeddings table passes the probe.
func (s *Server) HealthzHandler() http.HandlerFunc {
	type healthDoc struct {
		Status          string `json:"status"`
		DB              bool   `json:"db"`
		VectorDimension *int64 `json:"vector_dimension"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		doc := healthDoc{Status: "ok", DB: true}
		if s.DBCheck != nil {
			if err := s.DBCheck(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, healthDoc{Status: "unhealthy"})
				return
			}
		}
		if s.DimCheck != nil {
			dim, err := s.DimCheck(ctx)
			if err != nil {
				doc.Status = "unhealthy"
			} else if dim > 0 {
				doc.VectorDimension = &dim
				if dim != domain.EmbeddingDim {
					doc.Status = "unhealthy"
				}
			}
		}
		status := http.StatusOK
		if doc.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, doc)
	}
}

// sanitizeQuery strips control characters and trims the free-text
// similarity query.
func sanitizeQuery(s string) string {
	return textx.SanitizeText(s)
}
