package httpserver

import (
	"crypto/subtle"
	"embed"
	"html/template"
	"io/fs"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/oj-problem-hub/internal/config"
	"github.com/fairyhunter13/oj-problem-hub/internal/domain"
)

//go:embed static
var staticFiles embed.FS

//go:embed templates/*
var templateFiles embed.FS

// AdminServer serves the operator console: server-rendered pages plus
// the job-control API mounted under /admin/api.
type AdminServer struct {
	cfg            config.Config
	sessionManager *SessionManager
	server         *Server
	templates      *template.Template
}

// NewAdminServer parses the console templates and wires the session
// layer. Delimiters are [[ ]] so the pages can carry client-side
// template literals untouched.
func NewAdminServer(cfg config.Config, server *Server) (*AdminServer, error) {
	templates, err := template.New("admin").Delims("[[", "]]").ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, err
	}
	return &AdminServer{
		cfg:            cfg,
		sessionManager: NewSessionManager(cfg),
		server:         server,
		templates:      templates,
	}, nil
}

// MountRoutes mounts the console under /admin. Everything except the
// login form and static assets sits behind the session middleware.
func (a *AdminServer) MountRoutes(r chi.Router) {
	staticFS, _ := fs.Sub(staticFiles, "static")

	r.Route("/admin", func(admin chi.Router) {
		admin.Handle("/static/*", http.StripPrefix("/admin/static/", http.FileServer(http.FS(staticFS))))

		admin.Get("/login", a.LoginPage)
		admin.Post("/login", a.LoginHandler)
		admin.Post("/logout", a.LogoutHandler)

		admin.Group(func(protected chi.Router) {
			protected.Use(a.sessionManager.AuthRequired)

			protected.Get("/", a.DashboardPage)
			protected.Get("/problems", a.ProblemsPage)
			protected.Get("/tokens", a.TokensPage)

			protected.Route("/api", func(api chi.Router) {
				api.Post("/crawlers/trigger", a.server.TriggerCrawlerHandler())
				api.Get("/crawlers/status", a.server.CrawlerStatusHandler())
				api.Post("/crawlers/cancel", a.server.CancelCrawlerHandler())
				api.Get("/crawlers/{job_id}/output", a.server.CrawlerOutputHandler())

				api.Post("/embeddings/trigger", a.server.TriggerEmbeddingHandler())
				api.Get("/embeddings/status", a.server.EmbeddingStatusHandler())
				api.Post("/embeddings/cancel", a.server.CancelEmbeddingHandler())
				api.Get("/embeddings/{job_id}/output", a.server.EmbeddingOutputHandler())
				api.Get("/embeddings/{job_id}/progress", a.server.EmbeddingProgressHandler())

				api.Get("/tokens", a.server.ListTokensHandler())
				api.Post("/tokens", a.server.CreateTokenHandler())
				api.Delete("/tokens/{token}", a.server.RevokeTokenHandler())

				api.Get("/settings", a.server.GetSettingsHandler())
				api.Put("/settings", a.server.UpdateSettingsHandler())

				api.Post("/problems", a.server.CreateProblemHandler())
				api.Put("/problems/{source}/{id}", a.server.UpdateProblemHandler())
				api.Delete("/problems/{source}/{id}", a.server.DeleteProblemHandler())
			})
		})
	})
}

// credentialsValid checks the login pair. ADMIN_PASSWORD may hold an
// argon2id hash or, for dev setups, the plain secret.
func (a *AdminServer) credentialsValid(username, password string) bool {
	if !a.cfg.AdminEnabled() {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.cfg.AdminUsername)) == 1
	var passOK bool
	if strings.HasPrefix(a.cfg.AdminPassword, "argon2id$") {
		passOK = VerifyPassword(password, a.cfg.AdminPassword)
	} else {
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(a.cfg.AdminPassword)) == 1
	}
	return userOK && passOK
}

func (a *AdminServer) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := a.templates.ExecuteTemplate(w, name, data); err != nil {
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

// LoginPage renders the login form; an authenticated session skips it.
func (a *AdminServer) LoginPage(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie("session"); err == nil && cookie.Value != "" {
		if _, err := a.sessionManager.ValidateSession(cookie.Value); err == nil {
			http.Redirect(w, r, "/admin/", http.StatusSeeOther)
			return
		}
	}
	a.render(w, "login.html", struct {
		Error string
	}{Error: r.URL.Query().Get("error")})
}

// LoginHandler processes the login form submission.
func (a *AdminServer) LoginHandler(w http.ResponseWriter, r *http.Request) {
	username := r.FormValue("username")
	password := r.FormValue("password")

	if !a.credentialsValid(username, password) {
		http.Redirect(w, r, "/admin/login?error=invalid_credentials", http.StatusSeeOther)
		return
	}

	sessionValue, err := a.sessionManager.CreateSession(username)
	if err != nil {
		http.Error(w, "failed to create session", http.StatusInternalServerError)
		return
	}
	a.sessionManager.SetSessionCookie(w, sessionValue)
	http.Redirect(w, r, "/admin/", http.StatusSeeOther)
}

// LogoutHandler drops the session cookie.
func (a *AdminServer) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	a.sessionManager.ClearSessionCookie(w)
	http.Redirect(w, r, "/admin/login", http.StatusSeeOther)
}

// DashboardPage renders the job-control dashboard. Job state is
// fetched live by the page script, so only identity goes in here.
func (a *AdminServer) DashboardPage(w http.ResponseWriter, r *http.Request) {
	session, _ := r.Context().Value(sessionKey{}).(*SessionData)

	a.render(w, "dashboard.html", struct {
		Username  string
		Sources   []domain.Source
		TokenAuth bool
		Version   string
	}{
		Username:  session.Username,
		Sources:   domain.CrawlSources(),
		TokenAuth: a.server.TokenAuth.Enabled(),
		Version:   Version,
	})
}

// ProblemsPage renders a server-side slice of the catalog.
func (a *AdminServer) ProblemsPage(w http.ResponseWriter, r *http.Request) {
	session, _ := r.Context().Value(sessionKey{}).(*SessionData)

	source := r.URL.Query().Get("source")
	if source == "" {
		source = string(domain.SourceLeetCode)
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	result, err := a.server.Problems.List(r.Context(), domain.ListParams{
		Source:  source,
		Page:    page,
		PerPage: 50,
	})
	if err != nil {
		http.Error(w, "catalog unavailable", http.StatusInternalServerError)
		return
	}

	a.render(w, "problems.html", struct {
		Username   string
		Source     string
		Sources    []domain.Source
		Problems   []domain.ProblemSummary
		Page       int
		PrevPage   int
		NextPage   int
		HasNext    bool
		Total      int64
		TotalPages int64
	}{
		Username:   session.Username,
		Source:     source,
		Sources:    domain.CrawlSources(),
		Problems:   result.Data,
		Page:       result.Page,
		PrevPage:   result.Page - 1,
		NextPage:   result.Page + 1,
		HasNext:    int64(result.Page) < result.TotalPages,
		Total:      result.Total,
		TotalPages: result.TotalPages,
	})
}

// TokensPage lists issued API tokens and the auth toggle.
func (a *AdminServer) TokensPage(w http.ResponseWriter, r *http.Request) {
	session, _ := r.Context().Value(sessionKey{}).(*SessionData)

	tokens, err := a.server.Tokens.List(r.Context())
	if err != nil {
		http.Error(w, "catalog unavailable", http.StatusInternalServerError)
		return
	}

	a.render(w, "tokens.html", struct {
		Username  string
		Tokens    []domain.APIToken
		TokenAuth bool
	}{
		Username:  session.Username,
		Tokens:    tokens,
		TokenAuth: a.server.TokenAuth.Enabled(),
	})
}
