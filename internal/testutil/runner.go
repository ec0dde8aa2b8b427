package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/specialistvlad/gridci/internal/executor"
)

// ExecutionRecord holds the start and end times for a single job's execution.
type ExecutionRecord struct {
	Job         string
	BuildNumber int
	Env         map[string]string
	Start       time.Time
	End         time.Time
}

// FakeRunner implements executor.JobRunner without running commands. Each
// job writes its configured files into <Root>/<full name> and then returns
// its configured error.
type FakeRunner struct {
	Root string
	// Files maps a job name to workspace-relative files and their content.
	Files map[string]map[string]string
	// Errors maps a job name to the error it fails with.
	Errors map[string]error
	// Delay is slept before each job returns, honoring ctx.
	Delay time.Duration

	mu      sync.Mutex
	records []ExecutionRecord
}

var _ executor.JobRunner = (*FakeRunner)(nil)

// RunJob implements executor.JobRunner.
func (f *FakeRunner) RunJob(ctx context.Context, inv executor.Invocation) (executor.Output, error) {
	rec := ExecutionRecord{Job: inv.Job.Name, BuildNumber: inv.BuildNumber, Env: inv.Env, Start: time.Now()}
	defer func() {
		rec.End = time.Now()
		f.mu.Lock()
		f.records = append(f.records, rec)
		f.mu.Unlock()
	}()

	workspace := filepath.Join(f.Root, inv.FullName)
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return executor.Output{}, err
	}
	for rel, content := range f.Files[inv.Job.Name] {
		path := filepath.Join(workspace, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return executor.Output{}, err
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return executor.Output{}, err
		}
	}

	if f.Delay > 0 {
		select {
		case <-ctx.Done():
			return executor.Output{Workspace: workspace}, ctx.Err()
		case <-time.After(f.Delay):
		}
	}
	if err := f.Errors[inv.Job.Name]; err != nil {
		return executor.Output{Workspace: workspace}, fmt.Errorf("%s: %w", inv.Job.Name, err)
	}
	return executor.Output{Workspace: workspace}, nil
}

// Records returns the finished executions in completion order.
func (f *FakeRunner) Records() []ExecutionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ExecutionRecord(nil), f.records...)
}

// Jobs returns the names of the finished executions in completion order.
func (f *FakeRunner) Jobs() []string {
	var names []string
	for _, r := range f.Records() {
		names = append(names, r.Job)
	}
	return names
}
