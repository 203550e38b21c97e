package http

import (
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/alexedwards/scs/v2"

	applog "bilancio/internal/log"
	"bilancio/internal/middleware/ratelimit"
	"bilancio/internal/middleware/security"
	"bilancio/internal/middleware/trace"
	"bilancio/internal/services"
	"bilancio/internal/storage"
	appweb "bilancio/web"
)

// Server is the web frontend: session-authenticated server-rendered pages
// over the ledger, report and auth services.
type Server struct {
	http.Server
	templates *template.Template
	sessions  *scs.SessionManager

	repo    *storage.SQLiteRepository
	auth    *services.AuthService
	ledger  *services.LedgerService
	reports *services.ReportService

	limiter *ratelimit.Limiter
	tracer  *trace.Middleware

	stopCacheCleanup chan struct{}
	shutdownOnce     sync.Once
}

// NewServer configures routes, templates and middleware, returning a
// ready-to-run server.
func NewServer(addr string, sessionLifetime time.Duration, repo *storage.SQLiteRepository, auth *services.AuthService, ledger *services.LedgerService, reports *services.ReportService) *Server {
	sessions := scs.New()
	sessions.Lifetime = sessionLifetime
	sessions.Cookie.HttpOnly = true
	sessions.Cookie.SameSite = http.SameSiteLaxMode

	s := &Server{
		sessions:         sessions,
		repo:             repo,
		auth:             auth,
		ledger:           ledger,
		reports:          reports,
		limiter:          ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		tracer:           trace.NewMiddleware(security.ClientIP),
		stopCacheCleanup: make(chan struct{}),
	}

	// Parse embedded templates at startup.
	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		slog.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	mux := http.NewServeMux()

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("GET /static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		slog.Warn("Failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	// Auth pages. The submit endpoints are rate limited per client IP to
	// slow down credential guessing.
	limitAuth := s.limiter.Middleware(security.ClientIP, nil)
	mux.HandleFunc("GET /register", s.handleRegisterPage)
	mux.Handle("POST /register", limitAuth(http.HandlerFunc(s.handleRegisterSubmit)))
	mux.HandleFunc("GET /login", s.handleLoginPage)
	mux.Handle("POST /login", limitAuth(http.HandlerFunc(s.handleLoginSubmit)))
	mux.HandleFunc("GET /logout", s.handleLogout)

	// Everything below requires a logged-in user.
	mux.Handle("GET /{$}", s.requireAuth(s.handleDashboard))
	mux.Handle("POST /budget", s.requireAuth(s.handleBudgetSubmit))
	mux.Handle("GET /add", s.requireAuth(s.handleAddPage))
	mux.Handle("POST /add", s.requireAuth(s.handleAddSubmit))
	mux.Handle("GET /edit/{id}", s.requireAuth(s.handleEditPage))
	mux.Handle("POST /edit/{id}", s.requireAuth(s.handleEditSubmit))
	mux.Handle("POST /delete/{id}", s.requireAuth(s.handleDeleteSubmit))
	mux.Handle("GET /graphs", s.requireAuth(s.handleGraphs))
	mux.Handle("GET /graphs/data", s.requireAuth(s.handleGraphData))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	logger := applog.New(applog.Config{Component: applog.ComponentHTTP})

	// Outermost first: session load/save wraps everything so handlers can
	// mutate session state, then security headers, tracing and the
	// request-scoped logger.
	var handler http.Handler = mux
	handler = applog.Middleware(logger)(handler)
	handler = s.tracer.Middleware(handler)
	handler = headers.Middleware(handler)
	handler = sessions.LoadAndSave(handler)

	s.Server = http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go s.startCacheCleanup()

	return s
}

// startCacheCleanup periodically evicts expired report-cache entries.
func (s *Server) startCacheCleanup() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.reports != nil {
				if removed := s.reports.CleanExpired(); removed > 0 {
					slog.Debug("Report cache cleanup completed", "entries_removed", removed)
				}
			}
		case <-s.stopCacheCleanup:
			return
		}
	}
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		close(s.stopCacheCleanup)
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.repo.ListCategories(r.Context()); err != nil {
		slog.ErrorContext(r.Context(), "Readiness check failed", "error", err)
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
