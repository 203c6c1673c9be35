// Package web provides the HTTP API for vibestream: Spotify sign-in,
// playlist generation and management, preferences, and recommendations.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	spotifyauth "github.com/zmb3/spotify/v2/auth"

	"github.com/justestif/vibestream/internal/logging"
	"github.com/justestif/vibestream/internal/metrics"
	"github.com/justestif/vibestream/internal/playlists"
	"github.com/justestif/vibestream/internal/recommend"
	"github.com/justestif/vibestream/internal/store"
)

// DefaultAddr is the default server address.
const DefaultAddr = "127.0.0.1:8080"

const sessionSweepInterval = time.Hour

// ServerConfig holds server configuration.
type ServerConfig struct {
	Addr         string
	ClientID     string
	ClientSecret string
	// RedirectURL must match the Spotify app configuration.
	RedirectURL string

	Store       store.Store
	Sessions    SessionManager
	Playlists   *playlists.Service
	Recommender *recommend.Service

	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	MaxLimit          int

	// Authenticator and ProfileFetcher replace the Spotify defaults.
	Authenticator  Authenticator
	ProfileFetcher ProfileFetcher
}

// Server is the HTTP server for the web application.
type Server struct {
	router   chi.Router
	server   *http.Server
	sessions SessionManager
	handlers *Handlers
	cfg      ServerConfig
}

// NewServer creates a new web server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("server requires a store")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.Sessions == nil {
		cfg.Sessions = NewSessionStore()
	}
	if cfg.Playlists == nil {
		cfg.Playlists = playlists.New(cfg.Store)
	}
	if cfg.Recommender == nil {
		cfg.Recommender = recommend.New(cfg.Store)
	}

	auth := cfg.Authenticator
	if auth == nil {
		auth = spotifyauth.New(
			spotifyauth.WithClientID(cfg.ClientID),
			spotifyauth.WithClientSecret(cfg.ClientSecret),
			spotifyauth.WithRedirectURL(cfg.RedirectURL),
			spotifyauth.WithScopes(
				spotifyauth.ScopeUserReadEmail,
				spotifyauth.ScopeUserReadPrivate,
			),
		)
	}
	fetch := cfg.ProfileFetcher
	if fetch == nil {
		fetch = fetchSpotifyProfile
	}

	handlers := &Handlers{
		auth:         auth,
		fetchProfile: fetch,
		sessions:     cfg.Sessions,
		store:        cfg.Store,
		playlists:    cfg.Playlists,
		recommender:  cfg.Recommender,
		maxLimit:     cfg.MaxLimit,
	}

	s := &Server{
		router:   chi.NewRouter(),
		sessions: cfg.Sessions,
		handlers: handlers,
		cfg:      cfg,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))

	if len(s.cfg.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.cfg.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

func (s *Server) setupRoutes() {
	h := s.handlers

	s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Get("/auth/login", h.Login)
	s.router.Get("/callback", h.Callback)
	s.router.Post("/auth/logout", h.Logout)

	s.router.Route("/api", func(r chi.Router) {
		if s.cfg.RateLimitRequests > 0 && s.cfg.RateLimitWindow > 0 {
			r.Use(httprate.LimitByIP(s.cfg.RateLimitRequests, s.cfg.RateLimitWindow))
		}
		r.Use(h.requireSession)

		r.Get("/auth/user", h.CurrentUser)

		r.Get("/playlists", h.ListPlaylists)
		r.Post("/playlists", h.CreatePlaylist)
		r.Post("/playlists/generate", h.GeneratePlaylist)
		r.Route("/playlists/{id}", func(r chi.Router) {
			r.Get("/", h.GetPlaylist)
			r.Patch("/", h.UpdatePlaylist)
			r.Delete("/", h.DeletePlaylist)
			r.Get("/tracks", h.PlaylistTracks)
			r.Post("/tracks", h.AddTrack)
			r.Delete("/tracks/{trackId}", h.RemoveTrack)
			r.Post("/reconcile", h.ReconcilePlaylist)
		})

		r.Get("/preferences", h.GetPreferences)
		r.Post("/preferences", h.SavePreferences)

		r.Get("/recommendations", h.Recommendations)
	})
}

// requestLogger logs each request with zerolog and records API metrics
// under the matched route pattern.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := middleware.GetReqID(r.Context())
		if reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
			r = r.WithContext(logging.ContextWithRequestID(r.Context(), reqID))
		}

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		elapsed := time.Since(start)
		metrics.RecordAPIRequest(r.Method, route, status, elapsed)

		logging.Ctx(r.Context()).Info().
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", elapsed).
			Msg("request")
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	logging.Logger().Info().Str("addr", s.server.Addr).Msg("starting server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run starts the server and blocks until ctx is canceled or an interrupt
// signal arrives, then shuts down gracefully. Expired sessions are swept
// hourly while the server runs.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go s.sweepSessions(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logging.Logger().Info().Msg("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logging.Logger().Info().Msg("server stopped")
	return nil
}

func (s *Server) sweepSessions(ctx context.Context) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.sessions.DeleteExpired(ctx)
			if err != nil {
				logging.Logger().Warn().Err(err).Msg("sweeping sessions")
				continue
			}
			if n > 0 {
				logging.Logger().Debug().Int64("removed", n).Msg("expired sessions removed")
			}
		}
	}
}
