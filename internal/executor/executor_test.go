package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/specialistvlad/gridci/internal/artifactstore"
	"github.com/specialistvlad/gridci/internal/inmemorystore"
	"github.com/specialistvlad/gridci/internal/model"
	"github.com/specialistvlad/gridci/internal/pipeline"
	"github.com/specialistvlad/gridci/internal/promotion"
	"github.com/specialistvlad/gridci/internal/publisher"
	"github.com/specialistvlad/gridci/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type behavior func(ctx context.Context, inv Invocation, workspace string) error

// fakeRunner records every invocation and runs a scripted behavior per job.
type fakeRunner struct {
	root string

	mu       sync.Mutex
	behavior map[string]behavior
	calls    []Invocation
	events   []string
}

func (f *fakeRunner) on(job string, b behavior) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.behavior[job] = b
}

func (f *fakeRunner) event(e string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
}

func (f *fakeRunner) RunJob(ctx context.Context, inv Invocation) (Output, error) {
	ws := filepath.Join(f.root, inv.FullName)
	if err := os.MkdirAll(ws, 0o755); err != nil {
		return Output{}, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, inv)
	b := f.behavior[inv.Job.Name]
	f.mu.Unlock()

	f.event("start:" + inv.Job.Name)
	var err error
	if b != nil {
		err = b(ctx, inv, ws)
	}
	f.event("end:" + inv.Job.Name)
	return Output{Workspace: ws, LogPath: filepath.Join(ws, "log")}, err
}

func (f *fakeRunner) invoked(job string) []Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Invocation
	for _, c := range f.calls {
		if c.Job.Name == job {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeRunner) indexOf(e string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, ev := range f.events {
		if ev == e {
			return i
		}
	}
	return -1
}

type harness struct {
	reg      *registry.Registry
	store    *inmemorystore.Store
	runner   *fakeRunner
	repoRoot string
	exec     *Executor
}

func writeWar(ctx context.Context, inv Invocation, ws string) error {
	return os.WriteFile(filepath.Join(ws, "app.war"), []byte("war"), 0o644)
}

func fails(ctx context.Context, inv Invocation, ws string) error {
	return errors.New("exit status 1")
}

func blocksUntilDone(ctx context.Context, inv Invocation, ws string) error {
	<-ctx.Done()
	return ctx.Err()
}

func newHarness(t *testing.T, cfg Config, jobs ...*model.Job) *harness {
	t.Helper()
	h := &harness{
		reg:      registry.New(registry.Options{}),
		store:    inmemorystore.New(),
		runner:   &fakeRunner{root: t.TempDir(), behavior: map[string]behavior{}},
		repoRoot: t.TempDir(),
	}
	for _, j := range jobs {
		if j.Trigger == nil {
			j.Trigger = model.NoTrigger{}
		}
		require.NoError(t, h.reg.Register(j))
	}
	h.reg.Freeze()

	cfg.Registry = h.reg
	cfg.Store = h.store
	cfg.Runner = h.runner
	cfg.PostActions = &publisher.Archiver{ArchiveRoot: t.TempDir()}
	cfg.Gate = &promotion.Gate{Store: h.store, Publisher: &artifactstore.FileSystem{Root: h.repoRoot}, Registry: h.reg}

	var err error
	h.exec, err = New(cfg)
	require.NoError(t, err)
	return h
}

func (h *harness) build(t *testing.T, def pipeline.Definition) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.Build(context.Background(), h.reg, def)
	require.NoError(t, err)
	return p
}

// releaseJobs is the build, parallel(test, metrics), promote pipeline.
func releaseJobs() []*model.Job {
	return []*model.Job{
		{Name: "build", Publishers: []model.Publisher{model.ArchiveArtifact{Pattern: "*.war"}}},
		{Name: "test", Trigger: model.UpstreamTrigger{Job: "build"}},
		{Name: "metrics", Trigger: model.UpstreamTrigger{Job: "build"}},
		{Name: "promote"},
	}
}

func releaseDefinition() pipeline.Definition {
	return pipeline.Definition{
		Name:      "release",
		Stages:    pipeline.Sequential(pipeline.Single("build"), pipeline.Parallel("test", "metrics")),
		Promotion: &pipeline.Promotion{Job: "promote", From: "build", Repository: "libs-release"},
	}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	require.ErrorContains(t, err, "missing registry, store, runner")
}

func TestNew_FreezesRegistry(t *testing.T) {
	reg := registry.New(registry.Options{})
	require.NoError(t, reg.Register(&model.Job{Name: "build", Trigger: model.NoTrigger{}}))

	_, err := New(Config{Registry: reg, Store: inmemorystore.New(), Runner: &fakeRunner{root: t.TempDir(), behavior: map[string]behavior{}}})
	require.NoError(t, err)
	assert.True(t, reg.Frozen())
	assert.ErrorIs(t, reg.Register(&model.Job{Name: "late"}), registry.ErrFrozen)
}

func TestNew_RejectsInvalidNamespace(t *testing.T) {
	for _, ns := range []string{"../../escaped", "a/b", ".hidden"} {
		t.Run(ns, func(t *testing.T) {
			reg := registry.New(registry.Options{Namespace: ns})
			_, err := New(Config{Registry: reg, Store: inmemorystore.New(), Runner: &fakeRunner{root: t.TempDir(), behavior: map[string]behavior{}}})
			assert.ErrorIs(t, err, registry.ErrInvalidNamespace)
		})
	}
}

func TestRun_SuccessfulReleaseIsPromoted(t *testing.T) {
	h := newHarness(t, Config{}, releaseJobs()...)
	h.runner.on("build", writeWar)
	h.store.SetNextBuildNumber("build", 42)

	run, err := h.exec.Run(context.Background(), h.build(t, releaseDefinition()))
	require.NoError(t, err)

	assert.Equal(t, StateSucceeded, run.State)
	assert.Empty(t, run.FailedStages)
	require.Len(t, run.Stages, 2)
	assert.Equal(t, StageSucceeded, run.Stages[1].Status)

	artifacts := run.Artifacts()
	require.Len(t, artifacts, 1)
	assert.Equal(t, "app.war", artifacts[0].Name)
	assert.Equal(t, "build#42/app.war", artifacts[0].ID)

	calls := h.runner.invoked("promote")
	require.Len(t, calls, 1)
	assert.Equal(t, "build", calls[0].Env[EnvPromoteJob])
	assert.Equal(t, "42", calls[0].Env[EnvPromoteBuildNumber])
	assert.Equal(t, "libs-release", calls[0].Env[EnvPromoteRepository])
	assert.Equal(t, artifacts[0].Location, calls[0].Env[EnvPromoteArtifacts])

	require.NotNil(t, run.Promotion)
	assert.True(t, run.Promotion.Succeeded(), "promotion error: %v", run.Promotion.Err)
	assert.Equal(t, 42, run.Promotion.BuildNumber)
	assert.FileExists(t, filepath.Join(h.repoRoot, "libs-release", "build", "42", "app.war"))

	rec, err := h.store.Get(context.Background(), "build", 42)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, rec.Status)
}

func TestRun_FailingParallelJobSkipsPromotion(t *testing.T) {
	h := newHarness(t, Config{}, releaseJobs()...)
	h.runner.on("build", writeWar)
	h.runner.on("metrics", fails)

	run, err := h.exec.Run(context.Background(), h.build(t, releaseDefinition()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrJobFailed))

	assert.Equal(t, StateFailed, run.State)
	assert.Equal(t, []string{"parallel(test,metrics)"}, run.FailedStages)
	assert.Equal(t, []string{"metrics"}, run.FailedJobs)
	assert.Nil(t, run.Promotion)
	assert.Empty(t, h.runner.invoked("promote"))

	var jerr *JobExecutionError
	require.True(t, errors.As(err, &jerr))
	assert.Equal(t, "metrics", jerr.Job)
	assert.Equal(t, ReasonCommand, jerr.Reason)

	// The sibling's success is still recorded.
	test := run.Result("test")
	require.NotNil(t, test)
	assert.True(t, test.Succeeded())
	rec, err := h.store.Get(context.Background(), "test", test.BuildNumber)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, rec.Status)

	metrics, err := h.store.Get(context.Background(), "metrics", run.Result("metrics").BuildNumber)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailure, metrics.Status)
	assert.Equal(t, "exit status 1", metrics.Error)
}

func TestRun_TimeoutAbortsBeforeParallelGroup(t *testing.T) {
	jobs := releaseJobs()
	jobs[0].Timeout = 20 * time.Millisecond
	h := newHarness(t, Config{}, jobs...)
	h.runner.on("build", blocksUntilDone)

	run, err := h.exec.Run(context.Background(), h.build(t, releaseDefinition()))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	var jerr *JobExecutionError
	require.True(t, errors.As(err, &jerr))
	assert.Equal(t, ReasonTimeout, jerr.Reason)
	assert.Equal(t, "build", jerr.Job)

	assert.Equal(t, StateFailed, run.State)
	assert.Equal(t, []string{"build"}, run.FailedStages)
	require.Len(t, run.Stages, 2)
	assert.Equal(t, StageSkipped, run.Stages[1].Status)
	assert.Empty(t, run.Stages[1].Jobs)
	assert.Empty(t, h.runner.invoked("test"))
	assert.Empty(t, h.runner.invoked("metrics"))
}

func TestRun_DefaultTimeout(t *testing.T) {
	h := newHarness(t, Config{DefaultTimeout: 20 * time.Millisecond}, &model.Job{Name: "slow"})
	h.runner.on("slow", blocksUntilDone)

	_, err := h.exec.Run(context.Background(), h.build(t, pipeline.Definition{Name: "p", Stages: pipeline.Sequential(pipeline.Single("slow"))}))
	var jerr *JobExecutionError
	require.True(t, errors.As(err, &jerr))
	assert.Equal(t, ReasonTimeout, jerr.Reason)
}

func TestRun_UnresolvedPromotionKeepsSucceeded(t *testing.T) {
	jobs := releaseJobs()
	jobs[0].Publishers = nil // build archives nothing
	h := newHarness(t, Config{}, jobs...)

	run, err := h.exec.Run(context.Background(), h.build(t, releaseDefinition()))
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, run.State)

	require.NotNil(t, run.Promotion)
	assert.False(t, run.Promotion.Succeeded())
	assert.True(t, errors.Is(run.Promotion.Err, promotion.ErrUnresolvedArtifact))
	var uerr *promotion.UnresolvedArtifactError
	require.True(t, errors.As(run.Promotion.Err, &uerr))
	assert.Equal(t, "build", uerr.Job)
	assert.Empty(t, h.runner.invoked("promote"))
}

func TestRun_FailingPromotionJobKeepsSucceeded(t *testing.T) {
	h := newHarness(t, Config{}, releaseJobs()...)
	h.runner.on("build", writeWar)
	h.runner.on("promote", fails)

	run, err := h.exec.Run(context.Background(), h.build(t, releaseDefinition()))
	require.NoError(t, err)
	assert.Equal(t, StateSucceeded, run.State)
	assert.True(t, errors.Is(run.Promotion.Err, promotion.ErrPromotionFailed))
	assert.True(t, errors.Is(run.Promotion.Err, ErrJobFailed))
	assert.Empty(t, run.Promotion.Published)
}

func TestRun_SequentialOrder(t *testing.T) {
	h := newHarness(t, Config{}, &model.Job{Name: "a"}, &model.Job{Name: "b"}, &model.Job{Name: "c"})
	_, err := h.exec.Run(context.Background(), h.build(t, pipeline.Definition{
		Name:   "seq",
		Stages: pipeline.Sequential(pipeline.Single("a"), pipeline.Single("b"), pipeline.Single("c")),
	}))
	require.NoError(t, err)
	assert.Equal(t, []string{"start:a", "end:a", "start:b", "end:b", "start:c", "end:c"}, h.runner.events)
}

func TestRun_ParallelBarrier(t *testing.T) {
	h := newHarness(t, Config{}, &model.Job{Name: "fast"}, &model.Job{Name: "slow"}, &model.Job{Name: "after"})
	h.runner.on("slow", func(ctx context.Context, inv Invocation, ws string) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})

	_, err := h.exec.Run(context.Background(), h.build(t, pipeline.Definition{
		Name:   "barrier",
		Stages: pipeline.Sequential(pipeline.Parallel("fast", "slow"), pipeline.Single("after")),
	}))
	require.NoError(t, err)
	assert.Less(t, h.runner.indexOf("end:slow"), h.runner.indexOf("start:after"))
	assert.Less(t, h.runner.indexOf("end:fast"), h.runner.indexOf("start:after"))
}

func TestRun_FailureDoesNotCancelSiblings(t *testing.T) {
	h := newHarness(t, Config{}, &model.Job{Name: "broken"}, &model.Job{Name: "steady"})
	h.runner.on("broken", fails)

	var siblingErr atomic.Value
	h.runner.on("steady", func(ctx context.Context, inv Invocation, ws string) error {
		// Give the sibling time to fail first.
		time.Sleep(50 * time.Millisecond)
		siblingErr.Store(fmt.Sprint(ctx.Err()))
		return nil
	})

	run, err := h.exec.Run(context.Background(), h.build(t, pipeline.Definition{
		Name:   "siblings",
		Stages: pipeline.Sequential(pipeline.Parallel("broken", "steady")),
	}))
	require.Error(t, err)
	assert.Equal(t, "<nil>", siblingErr.Load())
	assert.True(t, run.Result("steady").Succeeded())
	assert.Equal(t, []string{"broken"}, run.FailedJobs)
}

func TestRun_MaxParallel(t *testing.T) {
	h := newHarness(t, Config{MaxParallel: 2},
		&model.Job{Name: "a"}, &model.Job{Name: "b"}, &model.Job{Name: "c"}, &model.Job{Name: "d"})

	var running, peak int32
	track := func(ctx context.Context, inv Invocation, ws string) error {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return nil
	}
	for _, j := range []string{"a", "b", "c", "d"} {
		h.runner.on(j, track)
	}

	_, err := h.exec.Run(context.Background(), h.build(t, pipeline.Definition{
		Name:   "bounded",
		Stages: pipeline.Sequential(pipeline.Parallel("a", "b", "c", "d")),
	}))
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestRun_CancellationPropagates(t *testing.T) {
	h := newHarness(t, Config{}, &model.Job{Name: "long"})
	ctx, cancel := context.WithCancel(context.Background())
	h.runner.on("long", func(jobCtx context.Context, inv Invocation, ws string) error {
		cancel()
		<-jobCtx.Done()
		return jobCtx.Err()
	})

	run, err := h.exec.Run(ctx, h.build(t, pipeline.Definition{Name: "c", Stages: pipeline.Sequential(pipeline.Single("long"))}))
	var jerr *JobExecutionError
	require.True(t, errors.As(err, &jerr))
	assert.Equal(t, ReasonCanceled, jerr.Reason)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, StateFailed, run.State)

	// The failure is still recorded.
	_, err = h.store.Get(context.Background(), "long", 1)
	require.NoError(t, err)
}

// ctxStore fails allocation once its context is done, like a networked store.
type ctxStore struct {
	*inmemorystore.Store
}

func (s ctxStore) NextBuildNumber(ctx context.Context, job string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.Store.NextBuildNumber(ctx, job)
}

func TestRun_CanceledBeforeAllocation(t *testing.T) {
	reg := registry.New(registry.Options{})
	require.NoError(t, reg.Register(&model.Job{Name: "build", Trigger: model.NoTrigger{}}))
	runner := &fakeRunner{root: t.TempDir(), behavior: map[string]behavior{}}
	exec, err := New(Config{Registry: reg, Store: ctxStore{inmemorystore.New()}, Runner: runner})
	require.NoError(t, err)
	p, err := pipeline.Build(context.Background(), reg, pipeline.Definition{Name: "p", Stages: pipeline.Sequential(pipeline.Single("build"))})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = exec.Run(ctx, p)

	var jerr *JobExecutionError
	require.True(t, errors.As(err, &jerr))
	assert.Equal(t, ReasonCanceled, jerr.Reason)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, runner.invoked("build"))
}

func TestRun_PublisherFailureFailsJob(t *testing.T) {
	h := newHarness(t, Config{}, &model.Job{Name: "build", Publishers: []model.Publisher{model.ArchiveArtifact{Pattern: "*.war"}}})

	_, err := h.exec.Run(context.Background(), h.build(t, pipeline.Definition{Name: "p", Stages: pipeline.Sequential(pipeline.Single("build"))}))
	var jerr *JobExecutionError
	require.True(t, errors.As(err, &jerr))
	assert.Equal(t, ReasonPublish, jerr.Reason)
	assert.True(t, errors.Is(err, publisher.ErrNoMatch))
}

func TestRun_RetentionAndHistory(t *testing.T) {
	h := newHarness(t, Config{}, &model.Job{
		Name:       "build",
		Retention:  model.Retention{Builds: 2},
		Publishers: []model.Publisher{model.ArchiveArtifact{Pattern: "*.war"}},
	})
	h.runner.on("build", writeWar)
	p := h.build(t, pipeline.Definition{Name: "p", Stages: pipeline.Sequential(pipeline.Single("build"))})

	var first *Run
	for i := 0; i < 3; i++ {
		run, err := h.exec.Run(context.Background(), p)
		require.NoError(t, err)
		if first == nil {
			first = run
		}
	}

	records, err := h.store.List(context.Background(), "build")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, 3, records[0].BuildNumber)
	assert.NoFileExists(t, first.Artifacts()[0].Location)

	runs := h.exec.Runs()
	require.Len(t, runs, 3)
	assert.Equal(t, first.ID.String(), runs[2].ID)

	summary, ok := h.exec.Lookup(first.ID.String())
	require.True(t, ok)
	assert.Equal(t, StateSucceeded, summary.State)
	require.Len(t, summary.Stages, 1)
	assert.Equal(t, 1, summary.Stages[0].Jobs[0].BuildNumber)

	_, ok = h.exec.Lookup("not-a-uuid")
	assert.False(t, ok)
}

func TestStateTransitions(t *testing.T) {
	assert.NoError(t, transition(StatePending, StateRunning))
	assert.NoError(t, transition(StateRunning, StateSucceeded))
	assert.NoError(t, transition(StateRunning, StateFailed))
	assert.True(t, errors.Is(transition(StateSucceeded, StateFailed), ErrInvalidTransition))
	assert.True(t, errors.Is(transition(StateFailed, StateRunning), ErrInvalidTransition))
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateRunning.Terminal())
}
