package web

import (
	"context"
	"net/http"
	"path/filepath"
	"time"

	chamaWeb "github.com/MrEthical07/chamaWeb"
	"github.com/MrEthical07/chamaWeb/internal"
	"github.com/MrEthical07/chamaWeb/internal/logging"
	"github.com/MrEthical07/chamaWeb/middleware"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Options configures a Server.
type Options struct {
	// PublicDir holds index.html, login.html and the other pages.
	PublicDir string
	// Secure marks the session cookie Secure.
	Secure bool
	// RateLimitPerMin bounds /api/ requests per client IP. Zero disables it.
	RateLimitPerMin int
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// CallbackTimeout bounds session writes made from handshake callbacks.
	CallbackTimeout time.Duration
}

// Server is the browser-facing HTTP frontend.
type Server struct {
	engine   *chamaWeb.Engine
	cookies  *CookieStore
	registry *registry
	limiter  *ipLimiter
	log      *zap.Logger
	opts     Options
	router   *mux.Router

	stop context.CancelFunc
}

var pages = map[string]string{
	"/":          "index.html",
	"/login":     "login.html",
	"/signup":    "signup.html",
	"/dashboard": "dashboard.html",
	"/chamas":    "chamas.html",
	"/profile":   "profile.html",
}

// New wires routes for engine. The engine must have been built with Redis.
func New(engine *chamaWeb.Engine, keys internal.CookieKeys, opts Options, log *zap.Logger) (*Server, error) {
	if engine == nil || engine.Sessions() == nil {
		return nil, chamaWeb.ErrEngineNotReady
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.PublicDir == "" {
		opts.PublicDir = "public"
	}
	if opts.CallbackTimeout <= 0 {
		opts.CallbackTimeout = 5 * time.Second
	}

	s := &Server{
		engine:   engine,
		cookies:  NewCookieStore(engine.Sessions(), keys, engine.Config().Session.MaxAge, opts.Secure),
		registry: newRegistry(),
		log:      log,
		opts:     opts,
		router:   mux.NewRouter(),
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	if opts.RateLimitPerMin > 0 {
		s.limiter = newIPLimiter(opts.RateLimitPerMin, log)
		go s.limiter.run(ctx)
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.router
	r.Use(logging.Middleware(s.log))

	api := r.PathPrefix("/api").Subrouter()
	if s.limiter != nil {
		api.Use(s.limiter.middleware)
	}

	api.HandleFunc("/auth/mpesa/login", s.handleMpesaInitiate).Methods(http.MethodPost)
	api.HandleFunc("/auth/mpesa/login", s.handleMpesaStatus).Methods(http.MethodGet)
	api.HandleFunc("/auth/mpesa/login", s.handleMpesaCancel).Methods(http.MethodDelete)
	api.HandleFunc("/auth/login", s.handlePasswordLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/signup", s.handleSignup).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", s.handleLogout).Methods(http.MethodPost)
	api.HandleFunc("/session", s.handleBootstrap).Methods(http.MethodGet)

	guard := middleware.RequireLocal(s.engine, s.sessionToken)
	api.Handle("/me", guard(http.HandlerFunc(s.handleMe))).Methods(http.MethodGet)
	api.Handle("/chamas", guard(http.HandlerFunc(s.handleChamas))).Methods(http.MethodGet)

	api.Handle("/create-chama", guard(http.HandlerFunc(s.handleCreateChama))).Methods(http.MethodPost)
	api.Handle("/join-chama", guard(http.HandlerFunc(s.handleJoinChama))).Methods(http.MethodPost)
	api.Handle("/chamas/{id:[0-9]+}/join-requests", guard(http.HandlerFunc(s.handleJoinRequests))).Methods(http.MethodGet)
	api.Handle("/chamas/{id:[0-9]+}/join-requests/{rid:[0-9]+}/{decision:approve|reject}", guard(http.HandlerFunc(s.handleDecideJoinRequest))).Methods(http.MethodPost)
	api.Handle("/chamas/{id:[0-9]+}/members", guard(http.HandlerFunc(s.handleMembers))).Methods(http.MethodGet)
	api.Handle("/chamas/{id:[0-9]+}/remove-member/{mid:[0-9]+}", guard(http.HandlerFunc(s.handleRemoveMember))).Methods(http.MethodDelete)
	api.Handle("/chamas/{id:[0-9]+}/update-roles", guard(http.HandlerFunc(s.handleUpdateRoles))).Methods(http.MethodPut)

	api.Handle("/chamas/{id:[0-9]+}/meetings", guard(http.HandlerFunc(s.handleScheduleMeeting))).Methods(http.MethodPost)
	api.Handle("/chamas/{id:[0-9]+}/meetings/{when:upcoming|previous}", guard(http.HandlerFunc(s.handleMeetings))).Methods(http.MethodGet)
	api.Handle("/chamas/{id:[0-9]+}/meetings/{mid:[0-9]+}/minutes", guard(http.HandlerFunc(s.handleSaveMinutes))).Methods(http.MethodPut)

	api.Handle("/profile", guard(http.HandlerFunc(s.handleProfile))).Methods(http.MethodGet)
	api.Handle("/profile", guard(http.HandlerFunc(s.handleUpdateProfile))).Methods(http.MethodPut)
	api.HandleFunc("/verify-email", s.handleVerifyEmail).Methods(http.MethodPost)
	api.HandleFunc("/resend-verification", s.handleResendVerification).Methods(http.MethodPost)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.opts.Metrics != nil {
		r.Handle("/metrics", s.opts.Metrics).Methods(http.MethodGet)
	}

	for path, file := range pages {
		r.Handle(path, s.page(file)).Methods(http.MethodGet)
	}
	r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.opts.PublicDir)))
}

func (s *Server) page(file string) http.Handler {
	full := filepath.Join(s.opts.PublicDir, file)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, full)
	})
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ActiveHandshakes is the number of handshakes still tracked.
func (s *Server) ActiveHandshakes() int {
	return s.registry.len()
}

// Close cancels every live handshake and stops background sweeps.
func (s *Server) Close() {
	s.stop()
	s.registry.cancelAll()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.engine.Health(r.Context())
	status := http.StatusOK
	if !h.RedisAvailable {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"redis":            h.RedisAvailable,
		"redis_latency_ms": h.RedisLatency.Milliseconds(),
	})
}
