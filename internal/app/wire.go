package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/specialistvlad/gridci/internal/artifactstore"
	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/specialistvlad/gridci/internal/executor"
	"github.com/specialistvlad/gridci/internal/inmemorystore"
	"github.com/specialistvlad/gridci/internal/localexecutor"
	"github.com/specialistvlad/gridci/internal/pgstore"
	"github.com/specialistvlad/gridci/internal/promotion"
	"github.com/specialistvlad/gridci/internal/publisher"
	"github.com/specialistvlad/gridci/internal/redisstore"
	"github.com/specialistvlad/gridci/internal/runstore"
	"github.com/specialistvlad/gridci/internal/scm"
	"github.com/specialistvlad/gridci/internal/telemetry"
	"go.opentelemetry.io/otel/trace"
)

// setup wires the collaborators needed by run, promote and watch.
func (a *App) setup(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	var tracer trace.Tracer
	if a.config.Trace {
		provider, shutdown, err := telemetry.InitTracer(a.opts.traceWriter, false)
		if err != nil {
			return fmt.Errorf("failed to start tracing: %w", err)
		}
		a.closers = append(a.closers, shutdown)
		tracer = provider.Tracer("github.com/specialistvlad/gridci")
		logger.Debug("Tracing enabled.")
	}

	store := a.opts.store
	if store == nil {
		var err error
		if store, err = a.openStore(ctx); err != nil {
			return err
		}
	}
	a.store = store
	a.seedBuildNumbers(ctx)

	pub := a.opts.publisher
	if pub == nil {
		pub = a.artifactPublisher()
	}
	a.gate = &promotion.Gate{Store: store, Publisher: pub, Registry: a.registry}

	scmClient := a.opts.scm
	if scmClient == nil {
		scmClient = &scm.Git{Credentials: scm.EnvCredentials{}}
	}
	a.opts.scm = scmClient

	runner := a.opts.runner
	if runner == nil {
		runner = &localexecutor.Runner{
			WorkspaceRoot: a.settings.WorkspaceRoot,
			LogRoot:       a.settings.LogRoot,
			SCM:           scmClient,
		}
	}

	exec, err := executor.New(executor.Config{
		Registry:       a.registry,
		Store:          store,
		Runner:         runner,
		PostActions:    &publisher.Archiver{ArchiveRoot: a.settings.ArchiveRoot},
		Gate:           a.gate,
		DefaultTimeout: a.settings.DefaultTimeout,
		MaxParallel:    a.settings.MaxParallel,
		Tracer:         tracer,
	})
	if err != nil {
		return err
	}
	a.executor = exec
	logger.Debug("Executor wired.", "store", a.settings.Store.Backend, "artifacts", a.settings.Artifacts.Backend, "max_parallel", a.settings.MaxParallel)
	return nil
}

func (a *App) openStore(ctx context.Context) (runstore.Store, error) {
	s := a.settings.Store
	switch s.Backend {
	case StoreRedis:
		store, err := redisstore.Open(ctx, s.RedisURL, s.RedisPrefix)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		return store, nil
	case StorePostgres:
		store, err := pgstore.Open(ctx, s.PostgresURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
		return store, nil
	default:
		return inmemorystore.New(), nil
	}
}

// seedBuildNumbers applies next_build_numbers. Keys are matched without
// regard to case since settings files lowercase them.
func (a *App) seedBuildNumbers(ctx context.Context) {
	if len(a.settings.NextBuildNumbers) == 0 {
		return
	}
	logger := ctxlog.FromContext(ctx)
	seeder, ok := a.store.(runstore.Seeder)
	if !ok {
		logger.Warn("Store does not support next_build_numbers; ignoring them.", "store", a.settings.Store.Backend)
		return
	}
	for key, n := range a.settings.NextBuildNumbers {
		seeded := false
		for _, job := range a.registry.Jobs() {
			if strings.EqualFold(job.Name, key) {
				seeder.SetNextBuildNumber(a.registry.FullName(job.Name), n)
				seeded = true
			}
		}
		if !seeded {
			logger.Warn("next_build_numbers names an unknown job.", "job", key)
		}
	}
}

func (a *App) artifactPublisher() artifactstore.Publisher {
	s := a.settings.Artifacts
	switch s.Backend {
	case ArtifactsHTTP:
		return &artifactstore.HTTP{
			BaseURL:  s.URL,
			Client:   &http.Client{Timeout: s.Timeout},
			Username: s.Username,
			Password: s.Password,
		}
	case ArtifactsSFTP:
		return &artifactstore.SFTP{
			Addr:     s.Addr,
			User:     s.Username,
			Password: s.Password,
			KeyFile:  s.KeyFile,
			Root:     s.Root,
			Timeout:  s.Timeout,
		}
	default:
		return &artifactstore.FileSystem{Root: s.Root}
	}
}

// close releases everything setup opened, last first.
func (a *App) close(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			ctxlog.FromContext(ctx).Warn("Failed to release resource.", "error", err)
		}
	}
	a.closers = nil
}
