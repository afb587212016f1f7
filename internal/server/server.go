package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/quizapp/internal/auth"
	"github.com/dukerupert/quizapp/internal/confirmation"
	"github.com/dukerupert/quizapp/internal/email"
	"github.com/dukerupert/quizapp/internal/handler"
	"github.com/dukerupert/quizapp/internal/middleware"
	"github.com/dukerupert/quizapp/internal/store"
	"github.com/dukerupert/quizapp/internal/token"
)

const (
	rateLimit       = 10
	rateLimitWindow = time.Minute
)

type Server struct {
	db           *sql.DB
	accountStore *store.AccountStore
	sessionStore *store.SessionStore
	signupH      *handler.SignupHandler
	confirmH     *handler.ConfirmHandler
	authH        *handler.AuthHandler
	dashboardH   *handler.DashboardHandler
	rateLimiter  middleware.Limiter
	logger       *slog.Logger
}

type Config struct {
	// BaseURL prefixes confirmation links. Empty means derive it per request.
	BaseURL    string
	MailFrom   string
	BcryptCost int
	SessionTTL time.Duration
	Transport  email.Transport
	// Limiter defaults to an in-memory limiter.
	Limiter middleware.Limiter
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	accountStore := store.NewAccountStore(db)
	sessionStore := store.NewSessionStore(db, cfg.SessionTTL)

	transport := cfg.Transport
	if transport == nil {
		transport = email.NewLogTransport(logger.With("component", "email"))
	}
	limiter := cfg.Limiter
	if limiter == nil {
		limiter = middleware.NewRateLimiter()
	}

	// Templates are embedded; a parse failure is a build defect.
	templates, err := handler.ParseTemplates()
	if err != nil {
		panic(err)
	}

	svc := confirmation.NewService(
		accountStore,
		token.NewGenerator(),
		email.NewMailer(transport),
		confirmation.Config{From: cfg.MailFrom},
		logger.With("component", "confirmation"),
	)
	issuer := auth.NewSessionIssuer(accountStore, sessionStore)

	return &Server{
		db:           db,
		accountStore: accountStore,
		sessionStore: sessionStore,
		signupH:      handler.NewSignupHandler(svc, cfg.BaseURL, cfg.BcryptCost, templates, logger.With("component", "signup")),
		confirmH:     handler.NewConfirmHandler(svc, issuer, sessionStore.TTL(), cfg.BaseURL, templates, logger.With("component", "confirm")),
		authH:        handler.NewAuthHandler(accountStore, sessionStore, issuer, sessionStore.TTL(), cfg.BcryptCost, templates, logger.With("component", "auth")),
		dashboardH:   handler.NewDashboardHandler(svc, templates, logger.With("component", "dashboard")),
		rateLimiter:  limiter,
		logger:       logger,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() middleware.Limiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Public routes
	mux.HandleFunc("GET /health", s.healthHandler)
	mux.HandleFunc("GET /signup", s.signupH.SignupPage)
	mux.HandleFunc("POST /signup", s.rateLimitedHandler(s.signupH.Signup))
	mux.HandleFunc("GET /thank-you", s.signupH.ThankYou)
	mux.HandleFunc("GET /confirm/{token}", s.confirmH.Confirm)
	mux.HandleFunc("POST /resend-confirmation", s.rateLimitedHandler(s.confirmH.ResendConfirmation))
	mux.HandleFunc("GET /login", s.authH.LoginPage)
	mux.HandleFunc("POST /login", s.rateLimitedHandler(s.authH.Login))

	// Protected routes
	authMw := middleware.RequireAuth(s.sessionStore, s.accountStore, s.logger.With("component", "auth"))
	mux.Handle("POST /logout", authMw(http.HandlerFunc(s.authH.Logout)))
	mux.Handle("GET /dashboard", authMw(http.HandlerFunc(s.dashboardH.Dashboard)))
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
	})

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func rateLimitKey(r *http.Request) string {
	return r.Method + " " + r.URL.Path + " " + middleware.RealIP(r)
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	rl := middleware.RateLimit(s.rateLimiter, rateLimitKey, rateLimit, rateLimitWindow, s.logger.With("component", "ratelimit"))
	return rl(h).ServeHTTP
}
