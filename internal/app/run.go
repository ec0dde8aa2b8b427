package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/specialistvlad/gridci/internal/executor"
	"github.com/specialistvlad/gridci/internal/model"
	"github.com/specialistvlad/gridci/internal/promotion"
	"github.com/specialistvlad/gridci/internal/trigger"
)

// ErrNotWatchable is returned by watch when the pipeline's first job has no
// poll trigger or no SCM block.
var ErrNotWatchable = errors.New("pipeline cannot be watched")

// Run executes the configured command. Definitions are loaded and validated
// first; a validation problem aborts before any job runs.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.", "command", a.config.Command)

	if err := a.load(ctx); err != nil {
		return err
	}
	if a.config.Command == CommandValidate {
		a.logger.Info("✅ Definitions are valid.")
		return nil
	}

	defer a.close(context.WithoutCancel(ctx))
	if err := a.setup(ctx); err != nil {
		return err
	}
	a.startHealthcheckServer(ctx)
	defer a.closeHealthcheckServer(ctx)

	var err error
	switch a.config.Command {
	case CommandPromote:
		err = a.promote(ctx)
	case CommandWatch:
		err = a.watch(ctx)
	default:
		_, err = a.runPipeline(ctx)
	}
	a.logger.Debug("App.Run method finished.")
	return err
}

// runPipeline runs the selected pipeline once. A failed promotion is
// reported but does not fail the command.
func (a *App) runPipeline(ctx context.Context) (*executor.Run, error) {
	run, err := a.executor.Run(ctx, a.selected)
	if err != nil {
		return run, err
	}
	if p := run.Promotion; p != nil && !p.Succeeded() {
		a.logger.Warn("Pipeline succeeded but its promotion failed.", "run_id", run.ID.String(), "error", p.Err)
	}
	a.logger.Info("🏁 Execution finished.", "run_id", run.ID.String(), "state", run.State, "artifacts", len(run.Artifacts()))
	return run, nil
}

// promote publishes the artifacts of an already recorded build.
func (a *App) promote(ctx context.Context) error {
	req := promotion.Request{
		Job:         a.config.Promote.Job,
		BuildNumber: a.config.Promote.BuildNumber,
		Repository:  a.config.Promote.Repository,
		Pattern:     a.config.Promote.Pattern,
	}
	if promo := a.selected.Promotion(); promo != nil && promo.From == req.Job {
		if req.Repository == "" {
			req.Repository = promo.Repository
		}
		if req.Pattern == "" {
			req.Pattern = promo.Pattern
		}
	}
	if req.Repository == "" {
		return fmt.Errorf("promote: no repository given and pipeline %q has no promotion from %q", a.selected.Name(), req.Job)
	}

	res, err := a.gate.Promote(ctx, req)
	if err != nil {
		return err
	}
	a.logger.Info("🎉 Promotion complete.", "job", res.Job, "build", res.BuildNumber, "repository", res.Repository, "published", len(res.Published))
	return nil
}

// watch polls the SCM of the pipeline's first job and runs the pipeline on
// every new revision until ctx is done. Stopping is not an error.
func (a *App) watch(ctx context.Context) error {
	first := a.selected.Stages()[0].Jobs[0]
	job, err := a.registry.Lookup(first)
	if err != nil {
		return err
	}
	poll, ok := job.Trigger.(model.PollTrigger)
	if !ok || job.SCM == nil {
		return fmt.Errorf("job %q needs a poll trigger and an scm block: %w", first, ErrNotWatchable)
	}

	logger := ctxlog.FromContext(ctx).With("job", first, "interval", poll.Interval)
	logger.Info("👀 Watching for new revisions.", "url", job.SCM.URL)

	p := &trigger.Poller{
		Interval: poll.Interval,
		Probe: func(ctx context.Context) (string, error) {
			return a.opts.scm.Revision(ctx, *job.SCM)
		},
		Fire: func(ctx context.Context, revision string) error {
			_, err := a.runPipeline(ctx)
			return err
		},
	}
	if err := p.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	logger.Info("Watch stopped.")
	return nil
}
