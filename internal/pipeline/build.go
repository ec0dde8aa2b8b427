package pipeline

import (
	"context"
	"fmt"
	"slices"

	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/specialistvlad/gridci/internal/model"
	"github.com/specialistvlad/gridci/internal/registry"
)

// Pipeline is a validated, immutable pipeline.
type Pipeline struct {
	name      string
	stages    []Stage
	promotion *Promotion
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// Stages returns a copy of the stages in execution order.
func (p *Pipeline) Stages() []Stage {
	stages := make([]Stage, len(p.stages))
	for i, s := range p.stages {
		s.Jobs = slices.Clone(s.Jobs)
		stages[i] = s
	}
	return stages
}

// Promotion returns the promotion stage, or nil.
func (p *Pipeline) Promotion() *Promotion {
	if p.promotion == nil {
		return nil
	}
	promo := *p.promotion
	return &promo
}

// Jobs returns the names of all stage jobs in declaration order, without the
// promotion job.
func (p *Pipeline) Jobs() []string {
	var jobs []string
	for _, s := range p.stages {
		jobs = append(jobs, s.Jobs...)
	}
	return jobs
}

// Build validates a definition against the registry. Every problem is
// reported, in declaration order, through a *ValidationError; building the
// same definition against the same registry always yields the same result.
func Build(ctx context.Context, reg *registry.Registry, def Definition) (*Pipeline, error) {
	logger := ctxlog.FromContext(ctx).With("pipeline", def.Name)
	logger.Debug("Build: validating pipeline definition.", "stages", len(def.Stages))

	var problems []error
	fail := func(kind error, format string, args ...any) {
		problems = append(problems, fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...)))
	}

	if len(def.Stages) == 0 {
		problems = append(problems, ErrEmptyPipeline)
	}

	// stageOf maps each job to the index of the stage that runs it.
	stageOf := make(map[string]int)
	for i, stage := range def.Stages {
		label := stageLabel(i, stage)
		switch {
		case len(stage.Jobs) == 0 && stage.Parallel:
			fail(ErrInvalidPipeline, "%s: parallel group has no jobs", label)
			continue
		case len(stage.Jobs) == 0:
			fail(ErrInvalidPipeline, "%s: stage must set a job or a parallel group", label)
			continue
		case len(stage.Jobs) > 1 && !stage.Parallel:
			fail(ErrInvalidPipeline, "%s: stage must set exactly one of job or parallel", label)
			continue
		}

		for _, name := range stage.Jobs {
			if !reg.Has(name) {
				fail(ErrUnknownJob, "%s references job %q", label, name)
				continue
			}
			if prev, dup := stageOf[name]; dup {
				fail(ErrInvalidPipeline, "%s: job %q already runs in %s", label, name, stageLabel(prev, def.Stages[prev]))
				continue
			}
			stageOf[name] = i
		}
	}

	// Upstream triggers must point at a job that runs in an earlier stage.
	for i, stage := range def.Stages {
		for _, name := range stage.Jobs {
			if stageOf[name] != i {
				continue
			}
			job, err := reg.Lookup(name)
			if err != nil {
				continue
			}
			up, ok := job.Trigger.(model.UpstreamTrigger)
			if !ok {
				continue
			}
			if at, found := stageOf[up.Job]; !found || at >= i {
				fail(ErrInvalidPipeline, "job %q is triggered by %q, which does not run in an earlier stage", name, up.Job)
			}
		}
	}

	if promo := def.Promotion; promo != nil {
		switch {
		case promo.Job == "":
			fail(ErrInvalidPipeline, "promotion requires a job")
		case !reg.Has(promo.Job):
			fail(ErrUnknownJob, "promotion references job %q", promo.Job)
		default:
			if _, inStage := stageOf[promo.Job]; inStage {
				fail(ErrInvalidPipeline, "promotion job %q cannot also run as a stage", promo.Job)
			}
		}
		if _, found := stageOf[promo.From]; !found {
			fail(ErrInvalidPipeline, "promotion must reference the output of a stage job, got %q", promo.From)
		}
		if promo.Repository == "" {
			fail(ErrInvalidPipeline, "promotion requires a target repository")
		}
	}

	if len(problems) > 0 {
		logger.Debug("Build: pipeline validation failed.", "problems", len(problems))
		return nil, &ValidationError{Pipeline: def.Name, Problems: problems}
	}

	p := &Pipeline{name: def.Name}
	for _, s := range def.Stages {
		s.Jobs = slices.Clone(s.Jobs)
		if s.Name == "" {
			if s.Parallel {
				s = Parallel(s.Jobs...)
			} else {
				s = Single(s.Jobs[0])
			}
		}
		p.stages = append(p.stages, s)
	}
	if def.Promotion != nil {
		promo := *def.Promotion
		p.promotion = &promo
	}

	logger.Debug("Build: pipeline is valid.", "jobs", len(stageOf))
	return p, nil
}

func stageLabel(i int, s Stage) string {
	if s.Name != "" {
		return fmt.Sprintf("stage %d (%s)", i+1, s.Name)
	}
	return fmt.Sprintf("stage %d", i+1)
}
