package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/specialistvlad/gridci/internal/artifactstore"
	"github.com/specialistvlad/gridci/internal/config"
	"github.com/specialistvlad/gridci/internal/executor"
	"github.com/specialistvlad/gridci/internal/pipeline"
	"github.com/specialistvlad/gridci/internal/promotion"
	"github.com/specialistvlad/gridci/internal/registry"
	"github.com/specialistvlad/gridci/internal/runstore"
	"github.com/specialistvlad/gridci/internal/scm"
)

// Option customizes the collaborators of an App. Anything left unset is
// built from Settings.
type Option func(*options)

type options struct {
	settings    *Settings
	loaders     []config.Loader
	runner      executor.JobRunner
	store       runstore.Store
	publisher   artifactstore.Publisher
	scm         scm.Client
	traceWriter io.Writer
}

// WithSettings skips LoadSettings and uses s.
func WithSettings(s Settings) Option {
	return func(o *options) { o.settings = &s }
}

// WithLoaders replaces the default HCL and YAML loaders.
func WithLoaders(loaders ...config.Loader) Option {
	return func(o *options) { o.loaders = loaders }
}

// WithRunner replaces the local command runner.
func WithRunner(r executor.JobRunner) Option {
	return func(o *options) { o.runner = r }
}

// WithStore replaces the configured run result store.
func WithStore(s runstore.Store) Option {
	return func(o *options) { o.store = s }
}

// WithPublisher replaces the configured artifact repository.
func WithPublisher(p artifactstore.Publisher) Option {
	return func(o *options) { o.publisher = p }
}

// WithSCM replaces the git client used for checkouts and polling.
func WithSCM(c scm.Client) Option {
	return func(o *options) { o.scm = c }
}

// WithTraceWriter sets where spans go when tracing is on. Defaults to stderr.
func WithTraceWriter(w io.Writer) Option {
	return func(o *options) { o.traceWriter = w }
}

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	settings Settings
	opts     options

	definitions *config.Model
	registry    *registry.Registry
	pipelines   map[string]*pipeline.Pipeline
	selected    *pipeline.Pipeline

	store      runstore.Store
	gate       *promotion.Gate
	executor   *executor.Executor
	closers    []func(context.Context) error
	httpServer *http.Server
}

// NewApp is the constructor for the main application. It resolves settings
// and creates the App's own isolated logger; definitions are loaded by Run.
func NewApp(outW io.Writer, cfg *Config, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.traceWriter == nil {
		o.traceWriter = os.Stderr
	}

	var settings Settings
	if o.settings != nil {
		settings = *o.settings
		if err := settings.validate(); err != nil {
			return nil, err
		}
	} else {
		var err error
		if settings, err = LoadSettings(cfg.SettingsFile); err != nil {
			return nil, err
		}
	}
	if cfg.Namespace != "" {
		settings.Namespace = cfg.Namespace
	}
	if cfg.Workers > 0 {
		settings.MaxParallel = cfg.Workers
	}
	if err := registry.ValidateNamespace(settings.Namespace); err != nil {
		return nil, err
	}

	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	logger.Debug("Logger configured successfully.", "namespace", settings.Namespace, "command", cfg.Command)

	return &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		settings: settings,
		opts:     o,
	}, nil
}

// Settings returns the effective settings.
func (a *App) Settings() Settings {
	return a.settings
}

// Registry returns the application's registry once Run has loaded it.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Executor returns the executor once Run has wired it.
func (a *App) Executor() *executor.Executor {
	return a.executor
}
