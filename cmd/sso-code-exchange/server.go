package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/wrale/sso-code-exchange/cmd/sso-code-exchange/handlers/authorization"
	"github.com/wrale/sso-code-exchange/cmd/sso-code-exchange/handlers/callback"
	"github.com/wrale/sso-code-exchange/cmd/sso-code-exchange/handlers/common"
	"github.com/wrale/sso-code-exchange/cmd/sso-code-exchange/handlers/health"
	"github.com/wrale/sso-code-exchange/cmd/sso-code-exchange/handlers/login"
	"github.com/wrale/sso-code-exchange/internal/oauth"
	"github.com/wrale/sso-code-exchange/internal/templates"
	"github.com/wrale/sso-code-exchange/internal/validation"
)

type server struct {
	cfg       Config
	router    *chi.Mux
	logger    zerolog.Logger
	provider  oauth.Provider
	templates *templates.Templates
	validator *validation.Validator
	checkers  map[string]health.Checker
}

func newServer(cfg Config, logger zerolog.Logger, provider oauth.Provider, checkers map[string]health.Checker) (*server, error) {
	tmpls, err := templates.LoadTemplates()
	if err != nil {
		return nil, fmt.Errorf("loading templates: %w", err)
	}

	if checkers == nil {
		checkers = make(map[string]health.Checker)
	}
	checkers["sso"] = provider

	srv := &server{
		cfg:       cfg,
		router:    chi.NewRouter(),
		logger:    logger,
		provider:  provider,
		templates: tmpls,
		validator: validation.New(),
		checkers:  checkers,
	}

	srv.router.Use(middleware.RealIP)
	srv.router.Use(hlog.NewHandler(logger))
	srv.router.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	srv.router.Use(hlog.AccessHandler(accessLog))
	srv.router.Use(common.Recoverer)

	srv.routes()

	return srv, nil
}

func (s *server) routes() {
	s.router.Method(http.MethodGet, "/health", health.New(s.checkers).WithVersion(Version))

	s.router.Method(http.MethodPost, "/api/oauth/callback", callback.New(callback.Config{
		Provider:     s.provider,
		Validator:    s.validator,
		CookieSecure: s.cfg.CookieSecure,
	}))
	s.router.Method(http.MethodGet, "/api/oauth/login", login.New(s.provider))

	s.router.Method(http.MethodGet, "/oauth/authorization", authorization.New(authorization.Config{
		Provider:     s.provider,
		Templates:    s.templates,
		Validator:    s.validator,
		CookieSecure: s.cfg.CookieSecure,
	}))
}

func accessLog(r *http.Request, status, size int, duration time.Duration) {
	hlog.FromRequest(r).Info().
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Int("status", status).
		Int("size", size).
		Dur("duration", duration).
		Msg("request")
}
