// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/JakeFAU/bar-directory-crawler/internal/captcha"
	"github.com/JakeFAU/bar-directory-crawler/internal/config"
	"github.com/JakeFAU/bar-directory-crawler/internal/driver"
	"github.com/JakeFAU/bar-directory-crawler/internal/drivers"
	"github.com/JakeFAU/bar-directory-crawler/internal/logging"
	"github.com/JakeFAU/bar-directory-crawler/internal/metrics"
	"github.com/JakeFAU/bar-directory-crawler/internal/useragent"
)

const shutdownTimeout = 5 * time.Second

// App holds the shared services for one process: the logger, the loaded
// configuration, and every configured site driver. It is built once at startup and
// handed to commands through the cobra context.
type App struct {
	logger  *zap.Logger
	cfg     config.Config
	agents  *useragent.Pool
	drivers []driver.Driver
	metrics *http.Server
}

// Option customizes New.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger injects a logger instead of building one from configuration.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// GetLogger returns the shared zap logger.
func (a *App) GetLogger() *zap.Logger {
	return a.logger
}

// GetConfig returns the loaded configuration.
func (a *App) GetConfig() config.Config {
	return a.cfg
}

// GetDrivers returns every configured driver, in configuration order.
func (a *App) GetDrivers() []driver.Driver {
	return a.drivers
}

// DriverDeps returns the collaborators every driver was built with.
func (a *App) DriverDeps() driver.Deps {
	return driver.Deps{
		Logger:   logging.NewLogger(a.logger),
		Detector: captcha.NewDetector(a.cfg.Captcha.ExtraPhrases...),
		Agents:   a.agents,
		Limits:   a.cfg.Limits(),
	}
}

// New builds the container from cfg. It fails fast if any site cannot be built.
func New(_ context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	l := o.logger
	if l == nil {
		var err error
		if l, err = logging.New(cfg.Logging.Development); err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
	}
	l.Info("initializing application services", zap.Int("sites", len(cfg.Sites)))

	a := &App{
		logger: l,
		cfg:    cfg,
		agents: useragent.NewPool(cfg.UserAgents),
	}
	built, err := drivers.BuildAll(cfg, a.DriverDeps())
	if err != nil {
		return nil, fmt.Errorf("build drivers: %w", err)
	}
	a.drivers = built

	if cfg.Metrics.Enabled {
		a.startMetrics(cfg.Metrics.Addr)
	}
	return a, nil
}

// Handler serves /metrics and /healthz for the optional metrics listener.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

func (a *App) startMetrics(addr string) {
	a.metrics = &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("metrics server started", zap.String("addr", addr))
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

// Close shuts down the metrics server and flushes the logger.
func (a *App) Close() {
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := a.metrics.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics server shutdown", zap.Error(err))
		}
	}
	// Sync fails on stderr/stdout for some platforms; nothing useful can be done then.
	_ = a.logger.Sync()
}
