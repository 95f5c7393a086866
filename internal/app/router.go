// Package app assembles the HTTP surface: middleware stack, public
// catalog API, health and metrics endpoints, and the admin console.
package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	httpserver "github.com/fairyhunter13/oj-problem-hub/internal/adapter/httpserver"
	"github.com/fairyhunter13/oj-problem-hub/internal/adapter/observability"
	"github.com/fairyhunter13/oj-problem-hub/internal/config"
)

// ParseOrigins splits a comma-separated origin list into a slice, trimming spaces.
// If the input is empty, returns ["*"].
func ParseOrigins(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return []string{"*"}
	}
	if s == "*" {
		return []string{"*"}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// BuildRouter constructs the HTTP handler with all middlewares and routes.
// admin may be nil when the console is not configured.
func BuildRouter(cfg config.Config, srv *httpserver.Server, admin *httpserver.AdminServer) http.Handler {
	r := chi.NewRouter()
	r.Use(httpserver.Recoverer())
	r.Use(httpserver.RequestID())
	r.Use(httpserver.TimeoutMiddleware(cfg.HTTPWriteTimeout))
	r.Use(httpserver.TraceMiddleware)
	r.Use(httpserver.AccessLog())
	r.Use(observability.HTTPMetricsMiddleware)

	// Health and metrics stay open; probes and scrapers carry no tokens.
	r.Get("/healthz", srv.HealthzHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) { promhttp.Handler().ServeHTTP(w, r) })

	// Public catalog API. CORS and the per-IP limiter apply only here;
	// the admin console is same-origin and must not be rate limited.
	r.Route("/api/v1", func(pub chi.Router) {
		pub.Use(cors.Handler(cors.Options{
			AllowedOrigins:   ParseOrigins(cfg.CORSAllowOrigins),
			AllowedMethods:   []string{"GET", "OPTIONS"},
			AllowedHeaders:   []string{"Authorization", "Content-Type"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
		pub.Use(httprate.LimitByIP(cfg.RateLimitPerMin, 1*time.Minute))
		pub.Use(srv.TokenAuth.Middleware)

		pub.Get("/daily", srv.DailyHandler())
		pub.Get("/similar", srv.SimilarByTextHandler())
		pub.Get("/similar/{source}/{id}", srv.SimilarByProblemHandler())
		pub.Get("/problems/{source}", srv.ListProblemsHandler())
		pub.Get("/problems/{source}/{id}", srv.GetProblemHandler())
		pub.Get("/tags/{source}", srv.ListTagsHandler())
		pub.Get("/resolve/*", srv.ResolveHandler())
		pub.Get("/status", srv.StatusHandler())
	})

	if admin != nil {
		admin.MountRoutes(r)
	}

	return httpserver.SecurityHeaders(r)
}
