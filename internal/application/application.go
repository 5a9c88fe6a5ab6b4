package application

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/eugenenazirov/udc-experiments/internal/api"
	"github.com/eugenenazirov/udc-experiments/internal/config"
	"github.com/eugenenazirov/udc-experiments/internal/experiment"
	"github.com/eugenenazirov/udc-experiments/internal/registry"
)

// App encapsulates the application dependencies and HTTP server.
type App struct {
	registry registry.Registry
	handler  *api.Handler
	router   http.Handler
	logger   *zap.Logger
	server   *http.Server
}

// NewRegistry creates a registry with the built-in named configurations followed
// by the ones declared in cfg, resolving against env.
func NewRegistry(cfg config.Config, env experiment.Environment) (*registry.MemoryRegistry, error) {
	reg, err := registry.NewDefault(env)
	if err != nil {
		return nil, fmt.Errorf("register built-in configs: %w", err)
	}
	for _, named := range cfg.NamedConfigs {
		if err := reg.Register(named); err != nil {
			return nil, fmt.Errorf("register configured config: %w", err)
		}
	}
	return reg, nil
}

// New initializes the application with all dependencies from the provided configuration.
func New(cfg config.Config, env experiment.Environment, logger *zap.Logger) (*App, error) {
	reg, err := NewRegistry(cfg, env)
	if err != nil {
		return nil, err
	}

	handler := api.NewHandler(reg)
	apiRouter := api.NewRouter(handler, logger,
		api.WithLogging(cfg.EnableRequestLogging),
		api.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	)

	return &App{
		registry: reg,
		handler:  handler,
		router:   apiRouter,
		logger:   logger,
		server:   NewServer(cfg, BuildRootHandler(apiRouter)),
	}, nil
}

// BuildRootHandler mounts the API under /api/.
func BuildRootHandler(apiHandler http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	return mux
}

// NewServer creates and configures an HTTP server from the provided configuration.
func NewServer(cfg config.Config, handler http.Handler) *http.Server {
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

// Start starts the HTTP server in a goroutine and logs the listening address.
func (a *App) Start() error {
	go func() {
		a.logger.Info("server listening",
			zap.String("addr", a.server.Addr),
			zap.Int("named_configs", len(a.registry.List())),
		)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("server error", zap.Error(err))
		}
	}()
	return nil
}

// Server returns the HTTP server instance for shutdown handling.
func (a *App) Server() *http.Server {
	return a.server
}
