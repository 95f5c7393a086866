package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/oj-problem-hub/internal/domain"
	"github.com/fairyhunter13/oj-problem-hub/internal/usecase"
)

// Admin job-control, token and settings APIs. All of these mount under
// /admin/api and sit behind the session middleware.

// TriggerCrawlerHandler starts a crawler run: 202 with the job id, 400
// on bad source/args, 409 while another crawl is running.
func (s *Server) TriggerCrawlerHandler() http.HandlerFunc {
	type triggerRequest struct {
		Source string   `json:"source"`
		Args   []string `json:"args"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req triggerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		jobID, err := s.Crawlers.Trigger(r.Context(), req.Source, req.Args)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
	}
}

// CrawlerStatusHandler reports the crawler slot document.
func (s *Server) CrawlerStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Crawlers.Status())
	}
}

// CancelCrawlerHandler kills the running crawl; 409 when idle.
func (s *Server) CancelCrawlerHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := s.Crawlers.Cancel()
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"job_id": jobID,
			"status": string(domain.JobCancelled),
		})
	}
}

// CrawlerOutputHandler returns the captured streams of one crawl.
func (s *Server) CrawlerOutputHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := s.Crawlers.Output(r.Context(), chi.URLParam(r, "job_id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// TriggerEmbeddingHandler starts an embedding build over the catalog.
func (s *Server) TriggerEmbeddingHandler() http.HandlerFunc {
	type triggerRequest struct {
		Source    string `json:"source" validate:"omitempty,max=32"`
		Rebuild   bool   `json:"rebuild"`
		DryRun    bool   `json:"dry_run"`
		BatchSize int    `json:"batch_size" validate:"omitempty,min=1,max=256"`
		Filter    string `json:"filter" validate:"omitempty,max=200"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req triggerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeValidation(w, "invalid embedding build request", validationErrors(err))
			return
		}
		jobID, err := s.Embeddings.Trigger(r.Context(), usecase.EmbeddingBuildRequest{
			Source:    req.Source,
			Rebuild:   req.Rebuild,
			DryRun:    req.DryRun,
			BatchSize: req.BatchSize,
			Filter:    req.Filter,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
	}
}

// EmbeddingStatusHandler reports the embedding slot document including
// the helper's progress for the current or last run.
func (s *Server) EmbeddingStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Embeddings.Status())
	}
}

// CancelEmbeddingHandler kills the running build; 409 when idle.
func (s *Server) CancelEmbeddingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := s.Embeddings.Cancel()
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"job_id": jobID,
			"status": string(domain.JobCancelled),
		})
	}
}

// EmbeddingOutputHandler returns the captured streams of one build.
func (s *Server) EmbeddingOutputHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := s.Embeddings.Output(r.Context(), chi.URLParam(r, "job_id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// EmbeddingProgressHandler serves the raw progress document of a build.
func (s *Server) EmbeddingProgressHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := s.Embeddings.Progress(chi.URLParam(r, "job_id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(raw)
	}
}

// ListTokensHandler lists every issued API token.
func (s *Server) ListTokensHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokens, err := s.Tokens.List(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, tokens)
	}
}

// CreateTokenHandler mints a new API token with an optional label.
func (s *Server) CreateTokenHandler() http.HandlerFunc {
	type createRequest struct {
		Label *string `json:"label" validate:"omitempty,max=100"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeValidation(w, "invalid token request", validationErrors(err))
			return
		}
		token, err := s.Tokens.Create(r.Context(), req.Label)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, token)
	}
}

// RevokeTokenHandler deactivates a token; 404 for unknown tokens.
func (s *Server) RevokeTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ok, err := s.Tokens.Revoke(r.Context(), chi.URLParam(r, "token"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		if !ok {
			writeProblem(w, http.StatusNotFound, "token not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GetSettingsHandler reports the live token-auth enforcement flag.
func (s *Server) GetSettingsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{
			"token_auth_enabled": s.TokenAuth.Enabled(),
		})
	}
}

// UpdateSettingsHandler persists the token-auth flag and flips the
// in-memory switch, so the change applies without a restart.
func (s *Server) UpdateSettingsHandler() http.HandlerFunc {
	type settingsRequest struct {
		TokenAuthEnabled bool `json:"token_auth_enabled"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req settingsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeProblem(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		value := "0"
		if req.TokenAuthEnabled {
			value = "1"
		}
		if err := s.Settings.Set(r.Context(), domain.SettingTokenAuthEnabled, value); err != nil {
			writeError(w, r, err)
			return
		}
		s.TokenAuth.SetEnabled(req.TokenAuthEnabled)
		writeJSON(w, http.StatusOK, map[string]bool{
			"token_auth_enabled": req.TokenAuthEnabled,
		})
	}
}

// CreateProblemHandler inserts a catalog row; 409 on duplicate key.
func (s *Server) CreateProblemHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := decodeProblemBody(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := s.ProblemsRW.Create(r.Context(), p); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	}
}

// UpdateProblemHandler rewrites a catalog row in place.
func (s *Server) UpdateProblemHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := decodeProblemBody(r)
		if err != nil {
			writeError(w, r, err)
			return
		}
		source, id := chi.URLParam(r, "source"), chi.URLParam(r, "id")
		if err := s.ProblemsRW.Update(r.Context(), source, id, p); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// DeleteProblemHandler removes a catalog row and its embedding.
func (s *Server) DeleteProblemHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source, id := chi.URLParam(r, "source"), chi.URLParam(r, "id")
		if err := s.ProblemsRW.Delete(r.Context(), source, id); err != nil {
			writeError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func decodeProblemBody(r *http.Request) (domain.Problem, error) {
	var p domain.Problem
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		return p, fmt.Errorf("%w: invalid JSON body", domain.ErrInvalidArgument)
	}
	if _, err := domain.ParseSource(p.Source); err != nil {
		return p, err
	}
	if p.ID == "" || p.Slug == "" {
		return p, fmt.Errorf("%w: id and slug are required", domain.ErrInvalidArgument)
	}
	return p, nil
}

// validationErrors flattens validator.ValidationErrors into the
// problem-document field list.
func validationErrors(err error) []fieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]fieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, fieldError{
			Field:   fe.Field(),
			Message: fe.Tag(),
		})
	}
	return out
}
