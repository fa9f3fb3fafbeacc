// Package web serves the browser-facing views and routes them through the workflow.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"ContractDesk/internal/authgate"
	"ContractDesk/internal/domain"
	"ContractDesk/pkg/logger"
)

// Deps wires the server to the session registry and the identity verifier.
type Deps struct {
	Sessions    *Sessions
	Verifier    *authgate.Verifier
	AuthCookie  string
	CORSOrigins []string
	// Health reports whether the session store is reachable; nil means always healthy.
	Health func(context.Context) error
	Logger *slog.Logger
}

// Server holds the handlers of the browser-facing routes.
type Server struct {
	sessions   *Sessions
	verifier   *authgate.Verifier
	authCookie string
	health     func(context.Context) error
	logger     *slog.Logger
}

type identityKey struct{}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps Deps) http.Handler {
	s := &Server{
		sessions:   deps.Sessions,
		verifier:   deps.Verifier,
		authCookie: deps.AuthCookie,
		health:     deps.Health,
		logger:     deps.Logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  logger.New(deps.Logger, "http", slog.LevelInfo),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))
	r.Use(s.identify)

	r.Get("/", s.handleRoot)
	r.Get("/login", s.handleNotice("Please sign in to continue."))
	r.Get("/unauthorized", s.handleNotice("You are not authorized to view this page."))
	r.Get("/healthz", s.handleHealth)

	r.Route("/home/{username}", func(r chi.Router) {
		r.Use(s.gate)
		r.Get("/", s.handleHome)
		r.Get("/documents/{docID}", s.handleDocumentSummary)
	})
	r.Route("/upload/{username}", func(r chi.Router) {
		r.Use(s.gate)
		r.Post("/", s.handleUpload)
		r.Post("/file", s.handleSelect)
	})
	r.Route("/summary/{username}/{docID}", func(r chi.Router) {
		r.Use(s.gate)
		r.Get("/", s.handleSummary)
		r.Post("/regenerate", s.handleRegenerate)
	})
	r.Route("/risk/{username}", func(r chi.Router) {
		r.Use(s.gate)
		r.Get("/", s.handleRisk)
	})
	r.Route("/session/{username}", func(r chi.Router) {
		r.Use(s.gate)
		r.Get("/", s.handleSnapshot)
		r.Delete("/", s.handleReset)
	})

	return r
}

// identify attaches the verified identity, if any, to the request context.
func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" && s.authCookie != "" {
			if c, err := r.Cookie(s.authCookie); err == nil {
				token = c.Value
			}
		}
		if token != "" {
			identity, err := s.verifier.Identity(token)
			if err != nil {
				s.debug("identity token rejected", "error", err)
			} else {
				r = r.WithContext(context.WithValue(r.Context(), identityKey{}, identity))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// gate applies the route-owner decision before any handler runs.
func (s *Server) gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner := chi.URLParam(r, "username")
		decision := authgate.Authorize(identityFrom(r.Context()), owner)
		if decision != authgate.Allow {
			s.debug("route gated", "owner", owner, "decision", decision)
			http.Redirect(w, r, decision.Location(), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func identityFrom(ctx context.Context) *domain.Identity {
	identity, _ := ctx.Value(identityKey{}).(*domain.Identity)
	return identity
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func (s *Server) debug(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}

func (s *Server) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}
