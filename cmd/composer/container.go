package main

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/samber/do/v2"

	"github.com/artpar/composer/internal/engine"
	"github.com/artpar/composer/internal/shell/api"
	"github.com/artpar/composer/internal/shell/metrics"
	"github.com/artpar/composer/internal/shell/store"
)

// =============================================================================
// Container
// =============================================================================

// Container wires the process services. Services are built lazily on first
// use, so the analyze command never opens a database unless asked to.
type Container struct {
	Config *Config
	Logger *slog.Logger

	injector do.Injector
	persist  bool
}

// NewContainer registers every service provider. With persist unset the
// analyzer runs without a store.
func NewContainer(cfg *Config, logger *slog.Logger, persist bool) *Container {
	c := &Container{
		Config:   cfg,
		Logger:   logger,
		injector: do.New(),
		persist:  persist,
	}

	do.ProvideValue(c.injector, cfg)
	do.ProvideValue(c.injector, logger)
	do.Provide(c.injector, provideStore)
	do.Provide(c.injector, provideMetrics)
	do.Provide(c.injector, c.provideAnalyzer)
	do.Provide(c.injector, provideHandler)
	do.Provide(c.injector, provideHTTPServer)
	return c
}

// Store returns the report store.
func (c *Container) Store() (store.Store, error) {
	return do.Invoke[store.Store](c.injector)
}

// Metrics returns the metrics collector.
func (c *Container) Metrics() (*metrics.Collector, error) {
	return do.Invoke[*metrics.Collector](c.injector)
}

// Analyzer returns the definition analyzer.
func (c *Container) Analyzer() (*engine.Analyzer, error) {
	return do.Invoke[*engine.Analyzer](c.injector)
}

// HTTPServer returns the API server.
func (c *Container) HTTPServer() (*http.Server, error) {
	return do.Invoke[*http.Server](c.injector)
}

// =============================================================================
// Providers
// =============================================================================

func provideStore(i do.Injector) (store.Store, error) {
	cfg := do.MustInvoke[*Config](i)

	dsn := cfg.Database.DSN
	if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, &ServerError{Op: "NewStore", Err: err, ExitCode: ExitDatabaseError}
		}
	}

	s, err := store.NewSQLiteStore(dsn)
	if err != nil {
		return nil, &ServerError{Op: "NewStore", Err: err, ExitCode: ExitDatabaseError}
	}
	return s, nil
}

func provideMetrics(i do.Injector) (*metrics.Collector, error) {
	return metrics.New(), nil
}

func (c *Container) provideAnalyzer(i do.Injector) (*engine.Analyzer, error) {
	cfg := do.MustInvoke[*Config](i)
	logger := do.MustInvoke[*slog.Logger](i)

	ecfg, err := cfg.Analysis.Engine()
	if err != nil {
		return nil, &ServerError{Op: "NewAnalyzer", Err: err, ExitCode: ExitConfigError}
	}

	var s store.Store
	if c.persist {
		if s, err = do.Invoke[store.Store](i); err != nil {
			return nil, err
		}
	}
	m, err := do.Invoke[*metrics.Collector](i)
	if err != nil {
		return nil, err
	}
	return engine.NewAnalyzer(s, m, logger, ecfg), nil
}

func provideHandler(i do.Injector) (*api.Handler, error) {
	s, err := do.Invoke[store.Store](i)
	if err != nil {
		return nil, err
	}
	a, err := do.Invoke[*engine.Analyzer](i)
	if err != nil {
		return nil, err
	}
	m, err := do.Invoke[*metrics.Collector](i)
	if err != nil {
		return nil, err
	}
	return api.NewHandler(s, a, m, do.MustInvoke[*slog.Logger](i)), nil
}

func provideHTTPServer(i do.Injector) (*http.Server, error) {
	cfg := do.MustInvoke[*Config](i)
	h, err := do.Invoke[*api.Handler](i)
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      h.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}, nil
}
