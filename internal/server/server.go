// Package server provides the HTTP handlers and routing for the portfolio site.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"portfolio/internal/apperr"
	"portfolio/internal/auth"
	"portfolio/internal/render"
	"portfolio/internal/showcase"
	"portfolio/internal/store"
	"portfolio/internal/uploads"
)

// Config contains server configuration values.
type Config struct {
	Production     bool
	ScheduleToken  string
	SiteTitle      string
	SiteURL        string
	UploadDir      string
	RequestTimeout time.Duration
}

// Projects is the record store behind the project routes.
type Projects interface {
	ListProjects(ctx context.Context) ([]store.Project, error)
	ProjectByTitle(ctx context.Context, title string) (store.Project, error)
	CreateProject(ctx context.Context, in store.ProjectInput) (store.Project, error)
	UpdateProject(ctx context.Context, id string, in store.ProjectInput) (store.Project, error)
	ListMarkdownFiles(ctx context.Context) ([]store.MarkdownFile, error)
	CreateMarkdownFile(ctx context.Context, projectID, filename, content string) (store.MarkdownFile, error)
}

// Showcase serves repository snapshots from the code-hosting API.
type Showcase interface {
	Fetch(ctx context.Context, slug string) (showcase.Snapshot, error)
	Repos(ctx context.Context) ([]showcase.RepoSummary, error)
	Refresh(ctx context.Context) (showcase.RefreshResult, error)
}

// Uploader stores image batches.
type Uploader interface {
	Save(ctx context.Context, projectID string, batch []uploads.Upload) ([]store.File, error)
}

// Deps are the collaborators the handlers call. Showcase may be nil, which
// disables the repository routes.
type Deps struct {
	Projects Projects
	Gate     *auth.Gate
	Limiter  *auth.Limiter
	Showcase Showcase
	Uploads  Uploader
	Renderer *render.Renderer
	Logger   *slog.Logger
}

// Server contains the configured router and collaborators.
type Server struct {
	cfg      Config
	router   *chi.Mux
	projects Projects
	gate     *auth.Gate
	limiter  *auth.Limiter
	showcase Showcase
	uploads  Uploader
	renderer *render.Renderer
	rendered *renderCache
	pages    *pages
	logger   *slog.Logger
}

// New constructs a Server with middleware and routes configured.
func New(cfg Config, deps Deps) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	if cfg.SiteTitle == "" {
		cfg.SiteTitle = "projects"
	}
	s := &Server{
		cfg:      cfg,
		router:   chi.NewRouter(),
		projects: deps.Projects,
		gate:     deps.Gate,
		limiter:  deps.Limiter,
		showcase: deps.Showcase,
		uploads:  deps.Uploads,
		renderer: deps.Renderer,
		rendered: newRenderCache(10 * time.Minute),
		pages:    newPages(),
		logger:   deps.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.limiter == nil {
		s.limiter = auth.NewLimiter(5)
	}
	if s.renderer == nil {
		s.renderer = render.New(uploads.URLPrefix)
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(auth.Peer)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.logRequests)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(cfg.RequestTimeout))

	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(s.limiter.Limit).Post("/admin", s.handleLogin)
			r.Post("/logout", s.handleLogout)
			r.Get("/session", s.handleSession)
		})

		r.Get("/projects", s.handleListProjects)
		r.Get("/markdownfiles", s.handleListMarkdownFiles)
		r.Get("/repos", s.handleListRepos)
		r.Get("/repos/{slug}", s.handleRepo)

		r.Group(func(r chi.Router) {
			r.Use(s.gate.Require)
			r.Post("/projects", s.handleCreateProject)
			r.Put("/projects", s.handleUpdateProject)
			r.Post("/files", s.handleUpload)
			r.Post("/markdownfiles", s.handleCreateMarkdownFile)
		})
	})

	s.router.Route("/internal", func(r chi.Router) {
		r.Use(s.auth)
		r.Post("/scheduled", s.handleScheduled)
	})

	s.router.Get("/projects", s.handleProjectsPage)
	s.router.Get("/projects/feed.atom", s.handleFeed)
	s.router.Get("/projects/{title}", s.handleProjectPage)

	if cfg.UploadDir != "" {
		fs := http.StripPrefix(uploads.URLPrefix, http.FileServer(http.Dir(cfg.UploadDir)))
		s.router.Get(uploads.URLPrefix+"*", fs.ServeHTTP)
	}

	return s
}

// Router exposes the root HTTP handler for the server.
func (s *Server) Router() http.Handler { return s.router }

// auth guards scheduler hooks with the bearer schedule token. An unset token
// closes the hooks entirely.
func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		want := "Bearer " + s.cfg.ScheduleToken
		got := r.Header.Get("Authorization")
		if s.cfg.ScheduleToken == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
			s.writeError(w, r, apperr.Unauthorized(), "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// logRequests logs one line per request once the response is written.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		s.logger.Log(r.Context(), level, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"lat_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError logs err and writes its public body. fallback is shown for
// failures whose message is not meant for callers.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := apperr.Status(err)
	if status >= 500 {
		s.logger.Error(fallback, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
	} else {
		s.logger.Debug(fallback, "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, apperr.Public(err, fallback, s.cfg.Production))
}

func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Wrap(apperr.KindValidation, "Invalid request body", err)
	}
	return nil
}
