package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/specialistvlad/gridci/internal/model"
	"github.com/specialistvlad/gridci/internal/pipeline"
	"github.com/specialistvlad/gridci/internal/promotion"
	"github.com/specialistvlad/gridci/internal/publisher"
	"github.com/specialistvlad/gridci/internal/registry"
	"github.com/specialistvlad/gridci/internal/runstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Invocation is one job execution handed to a JobRunner.
type Invocation struct {
	Job *model.Job
	// FullName is the namespaced job name.
	FullName    string
	BuildNumber int
	// Env is added on top of the job's own environment.
	Env map[string]string
}

// Output is what a JobRunner reports back.
type Output struct {
	Workspace string
	LogPath   string
}

// JobRunner executes a job's command. It must stop when ctx is done.
type JobRunner interface {
	RunJob(ctx context.Context, inv Invocation) (Output, error)
}

// PostActions applies a job's publishers after its command succeeded.
type PostActions interface {
	Publish(ctx context.Context, t publisher.Target) (*publisher.Outcome, error)
}

// Discarder is optionally implemented by PostActions to delete the archived
// files a retention policy released.
type Discarder interface {
	Discard(ctx context.Context, refs []model.ArtifactReference) error
}

// Config wires an Executor. Registry, Store and Runner are required.
type Config struct {
	Registry    *registry.Registry
	Store       runstore.Store
	Runner      JobRunner
	PostActions PostActions
	Gate        *promotion.Gate
	// DefaultTimeout applies to jobs without their own timeout. Zero means none.
	DefaultTimeout time.Duration
	// MaxParallel bounds the jobs of a parallel group running at once. Zero
	// means unbounded.
	MaxParallel int
	// Tracer defaults to the global OpenTelemetry tracer provider.
	Tracer trace.Tracer
	// Now defaults to time.Now.
	Now func() time.Time
}

// maxHistory is the number of runs kept for Runs and Lookup.
const maxHistory = 100

// Executor runs pipelines.
type Executor struct {
	cfg    Config
	tracer trace.Tracer

	mu    sync.RWMutex
	runs  map[uuid.UUID]*Run
	order []uuid.UUID
}

// New validates the configuration and creates an Executor. The registry is
// frozen.
func New(cfg Config) (*Executor, error) {
	var missing []string
	if cfg.Registry == nil {
		missing = append(missing, "registry")
	}
	if cfg.Store == nil {
		missing = append(missing, "store")
	}
	if cfg.Runner == nil {
		missing = append(missing, "runner")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("executor: missing %s", strings.Join(missing, ", "))
	}
	if err := registry.ValidateNamespace(cfg.Registry.Namespace()); err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("executor: MaxParallel cannot be negative")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	// Jobs must not change while pipelines run.
	cfg.Registry.Freeze()
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer("github.com/specialistvlad/gridci/internal/executor")
	}
	return &Executor{
		cfg:    cfg,
		tracer: tracer,
		runs:   make(map[uuid.UUID]*Run),
	}, nil
}

// Run executes the pipeline and returns the finished run. The error is nil
// when the run succeeded, even if its promotion failed; otherwise it wraps the
// first JobExecutionError.
func (e *Executor) Run(ctx context.Context, p *pipeline.Pipeline) (*Run, error) {
	run := newRun(p.Name())
	e.track(run)

	ctx, logger := ctxlog.With(ctx, "pipeline", p.Name(), "run_id", run.ID.String())
	ctx, span := e.tracer.Start(ctx, "pipeline "+p.Name(), trace.WithAttributes(
		attribute.String("gridci.pipeline", p.Name()),
		attribute.String("gridci.run_id", run.ID.String()),
	))
	defer span.End()

	if err := run.setState(StateRunning, e.cfg.Now()); err != nil {
		return run, err
	}
	stages := p.Stages()
	logger.Info("🚀 Starting pipeline run.", "stages", len(stages))

	var firstErr error
	for _, stage := range stages {
		if firstErr != nil {
			run.addStage(&StageResult{Name: stage.Name, Parallel: stage.Parallel, Status: StageSkipped})
			continue
		}
		res, err := e.runStage(ctx, stage)
		run.addStage(res)
		firstErr = err
	}

	if firstErr != nil {
		if err := run.setState(StateFailed, e.cfg.Now()); err != nil {
			return run, err
		}
		span.RecordError(firstErr)
		span.SetStatus(codes.Error, "pipeline failed")
		logger.Error("❌ Pipeline run failed.", "failed_stages", run.FailedStages, "failed_jobs", run.FailedJobs, "error", firstErr)
		return run, fmt.Errorf("pipeline %q failed in stage %q: %w", p.Name(), run.FailedStages[0], firstErr)
	}

	if err := run.setState(StateSucceeded, e.cfg.Now()); err != nil {
		return run, err
	}
	logger.Info("✅ Pipeline run succeeded.", "artifacts", len(run.Artifacts()))

	if promo := p.Promotion(); promo != nil {
		run.setPromotion(e.promote(ctx, run, promo))
	}
	return run, nil
}

func (e *Executor) runStage(ctx context.Context, stage pipeline.Stage) (*StageResult, error) {
	ctx, span := e.tracer.Start(ctx, "stage "+stage.Name, trace.WithAttributes(
		attribute.String("gridci.stage", stage.Name),
		attribute.Bool("gridci.parallel", stage.Parallel),
	))
	defer span.End()
	logger := ctxlog.FromContext(ctx).With("stage", stage.Name)

	res := &StageResult{Name: stage.Name, Parallel: stage.Parallel, Jobs: make([]*JobResult, len(stage.Jobs))}
	if !stage.Parallel {
		res.Jobs[0] = e.runJob(ctx, stage.Jobs[0], nil)
	} else {
		logger.Debug("Launching parallel group.", "jobs", stage.Jobs)
		// Members never return an error to the group, so a failure neither
		// cancels siblings nor releases the barrier early.
		var g errgroup.Group
		if e.cfg.MaxParallel > 0 {
			g.SetLimit(e.cfg.MaxParallel)
		}
		for i, name := range stage.Jobs {
			g.Go(func() error {
				res.Jobs[i] = e.runJob(ctx, name, nil)
				return nil
			})
		}
		_ = g.Wait()
	}

	res.Status = StageSucceeded
	var firstErr error
	for _, j := range res.Jobs {
		if j.Err != nil && firstErr == nil {
			firstErr = j.Err
		}
	}
	if firstErr != nil {
		res.Status = StageFailed
		span.RecordError(firstErr)
		span.SetStatus(codes.Error, "stage failed")
	}
	return res, firstErr
}

// runJob executes one registered job from allocation to retention. It never
// panics on job failure; the failure is returned in JobResult.Err.
func (e *Executor) runJob(ctx context.Context, name string, env map[string]string) *JobResult {
	full := e.cfg.Registry.FullName(name)
	jr := &JobResult{Job: name, FullName: full}

	ctx, logger := ctxlog.With(ctx, "job", full)
	ctx, span := e.tracer.Start(ctx, "job "+full, trace.WithAttributes(attribute.String("gridci.job", full)))
	defer span.End()

	fail := func(reason Reason, err error) *JobResult {
		jr.Err = &JobExecutionError{Job: full, BuildNumber: jr.BuildNumber, Reason: reason, Err: err}
		span.RecordError(jr.Err)
		span.SetStatus(codes.Error, string(reason))
		logger.Error("❌ Job failed.", "reason", reason, "error", err)
		return jr
	}

	job, err := e.cfg.Registry.Lookup(name)
	if err != nil {
		return fail(ReasonCommand, err)
	}
	build, err := e.cfg.Store.NextBuildNumber(ctx, full)
	if err != nil {
		execErr := e.classify(ctx, ctx, 0, ReasonStore, err)
		return fail(execErr.Reason, execErr.Err)
	}
	jr.BuildNumber = build
	ctx, logger = ctxlog.With(ctx, "build", build)
	span.SetAttributes(attribute.Int("gridci.build_number", build))

	timeout := job.Timeout
	if timeout == 0 {
		timeout = e.cfg.DefaultTimeout
	}
	var (
		jobCtx context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		jobCtx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		jobCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	result := &model.RunResult{Job: full, BuildNumber: build, Status: model.StatusSuccess, StartedAt: e.cfg.Now()}
	logger.Info("▶️ Running job.", "timeout", timeout)

	var execErr *JobExecutionError
	out, runErr := e.cfg.Runner.RunJob(jobCtx, Invocation{Job: job, FullName: full, BuildNumber: build, Env: env})
	result.LogPath = out.LogPath
	if runErr != nil || jobCtx.Err() != nil {
		execErr = e.classify(ctx, jobCtx, timeout, ReasonCommand, runErr)
	} else if e.cfg.PostActions != nil && len(job.Publishers) > 0 {
		outcome, perr := e.cfg.PostActions.Publish(jobCtx, publisher.Target{
			Job:         full,
			BuildNumber: build,
			Workspace:   out.Workspace,
			Publishers:  job.Publishers,
		})
		if outcome != nil {
			result.Artifacts = outcome.Artifacts
			result.Reports = outcome.Reports
		}
		if perr != nil {
			execErr = e.classify(ctx, jobCtx, timeout, ReasonPublish, perr)
		}
	}
	cancel()
	result.FinishedAt = e.cfg.Now()
	if execErr != nil {
		execErr.BuildNumber = build
		result.Status = model.StatusFailure
		result.Error = execErr.Err.Error()
	}

	// Record even when the run was canceled.
	storeCtx := context.WithoutCancel(ctx)
	jr.Result = result
	if err := e.cfg.Store.Record(storeCtx, result); err != nil && execErr == nil {
		execErr = &JobExecutionError{Job: full, BuildNumber: build, Reason: ReasonStore, Err: err}
	}
	e.retain(storeCtx, full, job.Retention)

	if execErr != nil {
		return fail(execErr.Reason, execErr.Err)
	}
	logger.Info("✅ Job succeeded.", "duration", result.Duration(), "artifacts", len(result.Artifacts))
	return jr
}

// classify decides why a job failed. Cancellation of the run wins over the
// job's own timeout, which wins over the fallback reason.
func (e *Executor) classify(parent, jobCtx context.Context, timeout time.Duration, fallback Reason, err error) *JobExecutionError {
	switch {
	case parent.Err() != nil:
		return &JobExecutionError{Reason: ReasonCanceled, Err: fmt.Errorf("run canceled: %w", context.Cause(parent))}
	case errors.Is(jobCtx.Err(), context.DeadlineExceeded):
		return &JobExecutionError{Reason: ReasonTimeout, Err: fmt.Errorf("exceeded timeout of %s: %w", timeout, context.DeadlineExceeded)}
	case err == nil:
		return &JobExecutionError{Reason: fallback, Err: jobCtx.Err()}
	default:
		return &JobExecutionError{Reason: fallback, Err: err}
	}
}

func (e *Executor) retain(ctx context.Context, job string, retention model.Retention) {
	if retention == (model.Retention{}) {
		return
	}
	logger := ctxlog.FromContext(ctx)
	released, err := e.cfg.Store.Prune(ctx, job, retention)
	if err != nil {
		logger.Warn("Failed to apply retention policy.", "error", err)
		return
	}
	if len(released) == 0 {
		return
	}
	if d, ok := e.cfg.PostActions.(Discarder); ok {
		if err := d.Discard(ctx, released); err != nil {
			logger.Warn("Failed to discard released artifacts.", "error", err)
		}
	}
	logger.Debug("Applied retention policy.", "released_artifacts", len(released))
}

// Promotion environment passed to the promotion job.
const (
	EnvPromoteJob         = "PROMOTE_JOB"
	EnvPromoteBuildNumber = "PROMOTE_BUILD_NUMBER"
	EnvPromoteArtifacts   = "PROMOTE_ARTIFACTS"
	EnvPromoteRepository  = "PROMOTE_REPOSITORY"
)

func (e *Executor) promote(ctx context.Context, run *Run, promo *pipeline.Promotion) *PromotionResult {
	ctx, span := e.tracer.Start(ctx, "promotion "+promo.Job)
	defer span.End()
	logger := ctxlog.FromContext(ctx).With("promotion", promo.Job, "from", promo.From)

	res := &PromotionResult{Job: promo.Job, From: promo.From, Repository: promo.Repository}
	fail := func(err error) *PromotionResult {
		res.Err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, "promotion failed")
		logger.Error("⚠️ Promotion failed; the run result is unchanged.", "error", err)
		return res
	}

	if e.cfg.Gate == nil {
		return fail(&promotion.PromotionFailure{Repository: promo.Repository, Err: promotion.ErrNoArtifactStore})
	}
	from := run.Result(promo.From)
	if from == nil || !from.Succeeded() {
		return fail(&promotion.UnresolvedArtifactError{Job: e.cfg.Registry.FullName(promo.From), Reason: "job did not succeed in this run"})
	}
	res.BuildNumber = from.BuildNumber

	refs, err := e.cfg.Gate.Resolve(ctx, from.FullName, from.BuildNumber, promo.Pattern)
	if err != nil {
		return fail(err)
	}
	res.Resolved = refs

	locations := make([]string, len(refs))
	for i, ref := range refs {
		locations[i] = ref.Location
	}
	sort.Strings(locations)
	res.Execution = e.runJob(ctx, promo.Job, map[string]string{
		EnvPromoteJob:         from.FullName,
		EnvPromoteBuildNumber: strconv.Itoa(from.BuildNumber),
		EnvPromoteArtifacts:   strings.Join(locations, " "),
		EnvPromoteRepository:  promo.Repository,
	})
	if res.Execution.Err != nil {
		return fail(&promotion.PromotionFailure{Repository: promo.Repository, Err: res.Execution.Err})
	}

	res.Published, err = e.cfg.Gate.Publish(ctx, refs, promo.Repository)
	if err != nil {
		return fail(err)
	}
	logger.Info("🎉 Promotion complete.", "build", from.BuildNumber, "repository", promo.Repository, "published", len(res.Published))
	return res
}

func (e *Executor) track(run *Run) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runs[run.ID] = run
	e.order = append(e.order, run.ID)
	if len(e.order) > maxHistory {
		delete(e.runs, e.order[0])
		e.order = e.order[1:]
	}
}

// Runs returns snapshots of recent runs, newest first.
func (e *Executor) Runs() []Summary {
	e.mu.RLock()
	runs := make([]*Run, 0, len(e.order))
	for i := len(e.order) - 1; i >= 0; i-- {
		runs = append(runs, e.runs[e.order[i]])
	}
	e.mu.RUnlock()

	out := make([]Summary, len(runs))
	for i, r := range runs {
		out[i] = r.Snapshot()
	}
	return out
}

// Lookup returns a snapshot of one run by ID.
func (e *Executor) Lookup(id string) (Summary, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Summary{}, false
	}
	e.mu.RLock()
	run, ok := e.runs[parsed]
	e.mu.RUnlock()
	if !ok {
		return Summary{}, false
	}
	return run.Snapshot(), true
}
