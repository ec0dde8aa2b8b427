package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/specialistvlad/gridci/internal/config"
	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/specialistvlad/gridci/internal/hcl_adapter"
	"github.com/specialistvlad/gridci/internal/model"
	"github.com/specialistvlad/gridci/internal/pipeline"
	"github.com/specialistvlad/gridci/internal/registry"
	"github.com/specialistvlad/gridci/internal/yaml_adapter"
)

// ErrNoPipeline is returned when no pipeline is defined or the selected one
// does not exist.
var ErrNoPipeline = errors.New("no pipeline to run")

// load reads every definition file, registers the jobs, and builds every
// pipeline. All problems found are joined into one error.
func (a *App) load(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading definitions...", "paths", a.config.Paths)

	loaders := a.opts.loaders
	if len(loaders) == 0 {
		loaders = []config.Loader{
			hcl_adapter.NewLoader(a.settings.Namespace),
			yaml_adapter.NewLoader(),
		}
	}

	defs := config.NewModel()
	for _, l := range loaders {
		m, err := l.Load(ctx, a.config.Paths...)
		if err != nil {
			return fmt.Errorf("failed to load definitions: %w", err)
		}
		if err := defs.Merge(m); err != nil {
			return fmt.Errorf("failed to load definitions: %w", err)
		}
	}
	a.definitions = defs
	logger.Debug("Definitions loaded.", "jobs", len(defs.Jobs), "pipelines", len(defs.Pipelines))

	reg := registry.New(registry.Options{Namespace: a.settings.Namespace})
	var errs []error
	for _, cfg := range defs.Jobs {
		job, err := model.FromConfig(cfg)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", cfg.Source, err))
			continue
		}
		if err := reg.Register(job); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", cfg.Source, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	reg.Freeze()
	a.registry = reg

	a.pipelines = make(map[string]*pipeline.Pipeline, len(defs.Pipelines))
	for _, cfg := range defs.Pipelines {
		p, err := pipeline.Build(ctx, reg, pipeline.FromConfig(cfg))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", cfg.Source, err))
			continue
		}
		a.pipelines[p.Name()] = p
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	selected, err := a.selectPipeline()
	if err != nil {
		return err
	}
	a.selected = selected
	logger.Info("Definitions validated.", "jobs", len(reg.Jobs()), "pipelines", len(a.pipelines), "pipeline", selected.Name())
	return nil
}

func (a *App) selectPipeline() (*pipeline.Pipeline, error) {
	if name := a.config.Pipeline; name != "" {
		p, ok := a.pipelines[name]
		if !ok {
			return nil, fmt.Errorf("pipeline %q is not defined: %w", name, ErrNoPipeline)
		}
		return p, nil
	}
	switch len(a.pipelines) {
	case 0:
		return nil, fmt.Errorf("no pipeline block found in %s: %w", strings.Join(a.config.Paths, ", "), ErrNoPipeline)
	case 1:
		for _, p := range a.pipelines {
			return p, nil
		}
	}
	names := make([]string, 0, len(a.pipelines))
	for name := range a.pipelines {
		names = append(names, name)
	}
	sort.Strings(names)
	return nil, fmt.Errorf("%d pipelines defined (%s); select one with -pipeline: %w", len(names), strings.Join(names, ", "), ErrNoPipeline)
}
