package httphost

import (
	"context"
	"net/http"

	"github.com/MrEthical07/dashauth"
	"github.com/MrEthical07/dashauth/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Engine is the part of *dashauth.Engine the host needs.
type Engine interface {
	Handle(ctx context.Context, req dashauth.Request) (*dashauth.Response, error)
}

// Config controls cookie attributes and optional routes.
type Config struct {
	// CookieName is the session cookie read from requests. It must match
	// the cookie name in the credential file.
	CookieName string
	// SecureCookies sets the Secure attribute on issued cookies.
	SecureCookies bool
	// AdminUsername is reported with role "admin" in the session view.
	AdminUsername string
	// Metrics is mounted at /metrics when non-nil.
	Metrics http.Handler
}

// Server holds the handlers.
type Server struct {
	engine Engine
	config Config
	logger *zap.Logger
}

// New returns a Server. A nil logger is replaced by a no-op logger.
func New(engine Engine, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AdminUsername == "" {
		cfg.AdminUsername = "admin"
	}
	return &Server{engine: engine, config: cfg, logger: logger}
}

// Router builds the chi router with request logging, panic recovery and
// client IP propagation.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(WithRequestLogging(s.logger))
	r.Use(withClientIP)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.config.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.config.Metrics)
	}

	r.Get("/", s.View)
	r.With(middleware.Guard(s.engine, s.config.CookieName)).Get("/dashboard", s.Dashboard)
	r.Group(func(r chi.Router) {
		r.Use(chiMiddleware.AllowContentType("application/json"))
		r.Post("/login", s.Login)
		r.Post("/register", s.Register)
		r.Post("/profile", s.UpdateProfile)
		r.Post("/password", s.ResetPassword)
	})
	r.Post("/logout", s.Logout)

	return r
}
