package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/ijbridge/internal/api"
	"github.com/eugenenazirov/ijbridge/internal/bridge"
	"github.com/eugenenazirov/ijbridge/internal/config"
	"github.com/eugenenazirov/ijbridge/internal/platform"
	"github.com/eugenenazirov/ijbridge/internal/session"
	"github.com/eugenenazirov/ijbridge/internal/storage"
)

// ServerConfig holds the HTTP control plane settings.
type ServerConfig struct {
	Port                 string
	ShutdownGracePeriod  time.Duration
	ReadHeaderTimeout    time.Duration
	WriteTimeout         time.Duration
	IdleTimeout          time.Duration
	EnableRequestLogging bool
	RateLimitRPS         float64
	RateLimitBurst       int
}

// DefaultServerConfig returns the settings used when no flags are given.
// WriteTimeout is long because POST /api/session waits for the toolkit to start.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:                 "8080",
		ShutdownGracePeriod:  10 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		WriteTimeout:         5 * time.Minute,
		IdleTimeout:          60 * time.Second,
		EnableRequestLogging: true,
		RateLimitRPS:         5,
		RateLimitBurst:       10,
	}
}

// Dependencies are the collaborators the application is built from.
type Dependencies struct {
	Storage  storage.Storage
	Bridge   bridge.Bridge
	Platform platform.Capabilities
	// SessionOptions are passed to session.New.
	SessionOptions []session.Option
}

// App encapsulates the application dependencies and HTTP server.
type App struct {
	storage  storage.Storage
	session  *session.Session
	resolver *config.Resolver
	handler  *api.Handler
	router   http.Handler
	logger   *zap.Logger
	server   *http.Server
}

// New initializes the application from the provided configuration.
func New(cfg ServerConfig, deps Dependencies, logger *zap.Logger) (*App, error) {
	if deps.Storage == nil {
		return nil, errors.New("settings storage is required")
	}
	if deps.Bridge == nil {
		return nil, errors.New("bridge is required")
	}
	if deps.Platform == nil {
		deps.Platform = platform.Detect()
	}

	sessionOpts := append([]session.Option{session.WithLogger(logger)}, deps.SessionOptions...)
	sess := session.New(deps.Bridge, sessionOpts...)
	resolver := config.NewResolver(deps.Platform, config.WithLogger(logger))

	handler := api.NewHandler(deps.Storage, sess, deps.Platform, api.WithResolver(resolver))
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	return &App{
		storage:  deps.Storage,
		session:  sess,
		resolver: resolver,
		handler:  handler,
		router:   apiRouter,
		logger:   logger,
		server:   NewServer(cfg, BuildRootHandler(apiRouter)),
	}, nil
}

// BuildRootHandler routes API requests and redirects the bare root to the
// settings document.
func BuildRootHandler(apiHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/api/settings", http.StatusTemporaryRedirect)
	}))
	return mux
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg ServerConfig, handler http.Handler) *http.Server {
	addr := cfg.Port
	if !strings.Contains(addr, ":") {
		addr = ":" + addr
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

// InitializeSession resolves the stored settings and starts the runtime
// session. It is what POST /api/session does, for callers that start the
// toolkit eagerly.
func (a *App) InitializeSession(ctx context.Context) (bridge.Handle, error) {
	stored, err := a.storage.GetSettings()
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	resolved, err := a.resolver.Resolve(stored)
	if err != nil {
		return nil, err
	}
	return a.session.Initialize(ctx, resolved)
}

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening", zap.String("addr", a.server.Addr))
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Close tears down the runtime session.
func (a *App) Close(ctx context.Context) error {
	if err := a.session.Teardown(ctx); err != nil {
		return fmt.Errorf("teardown session: %w", err)
	}
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}

// Session returns the runtime session served by the API.
func (a *App) Session() *session.Session {
	return a.session
}
