package localexecutor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/specialistvlad/gridci/internal/executor"
	"github.com/specialistvlad/gridci/internal/scm"
)

var (
	// ErrCommandFailed is returned when a command exits with a non-zero status.
	ErrCommandFailed = errors.New("command failed")
	// ErrInvalidJobPath is returned when a job's full name would leave the
	// configured roots.
	ErrInvalidJobPath = errors.New("invalid job path")
)

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Environment variables set for every command.
const (
	EnvBuildNumber = "BUILD_NUMBER"
	EnvJobName     = "JOB_NAME"
	EnvWorkspace   = "WORKSPACE"
)

// Runner implements executor.JobRunner.
//
// Workspaces live at <WorkspaceRoot>/<job> and are reused between builds.
// Combined stdout and stderr go to <LogRoot>/<job>/<build>.log.
type Runner struct {
	WorkspaceRoot string
	LogRoot       string
	// SCM checks out sources for jobs that declare a repository.
	SCM scm.Client
	// Shell defaults to "sh".
	Shell string
	// WaitDelay bounds how long a killed command may keep its output open.
	WaitDelay time.Duration
}

var _ executor.JobRunner = (*Runner)(nil)

// RunJob checks out the job's sources, then runs its command. The process is
// killed when ctx is done.
func (r *Runner) RunJob(ctx context.Context, inv executor.Invocation) (executor.Output, error) {
	logger := ctxlog.FromContext(ctx)
	out := executor.Output{
		Workspace: filepath.Join(r.WorkspaceRoot, inv.FullName),
		LogPath:   filepath.Join(r.LogRoot, inv.FullName, strconv.Itoa(inv.BuildNumber)+".log"),
	}

	if !within(r.WorkspaceRoot, out.Workspace) || !within(r.LogRoot, out.LogPath) {
		return out, fmt.Errorf("%w: job %q resolves outside the workspace or log root", ErrInvalidJobPath, inv.FullName)
	}
	if err := os.MkdirAll(out.Workspace, 0o755); err != nil {
		return out, fmt.Errorf("create workspace: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(out.LogPath), 0o755); err != nil {
		return out, fmt.Errorf("create log directory: %w", err)
	}

	if src := inv.Job.SCM; src != nil {
		if r.SCM == nil {
			return out, fmt.Errorf("job %s declares a repository but no SCM client is configured", inv.FullName)
		}
		if err := r.SCM.Checkout(ctx, out.Workspace, *src); err != nil {
			return out, fmt.Errorf("checkout: %w", err)
		}
	}

	if inv.Job.Command == "" {
		logger.Debug("Job has no command.")
		return out, nil
	}

	logFile, err := os.Create(out.LogPath)
	if err != nil {
		return out, fmt.Errorf("create build log: %w", err)
	}
	defer logFile.Close()

	shell := r.Shell
	if shell == "" {
		shell = "sh"
	}
	cmd := exec.CommandContext(ctx, shell, "-c", inv.Job.Command)
	cmd.Dir = out.Workspace
	cmd.Env = r.environ(inv, out.Workspace)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = 5 * time.Second
	}

	logger.Debug("Running command.", "workspace", out.Workspace, "log", out.LogPath)
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return out, fmt.Errorf("%w: exit status %d (see %s)", ErrCommandFailed, exitErr.ExitCode(), out.LogPath)
		}
		return out, fmt.Errorf("%w: %v", ErrCommandFailed, err)
	}
	return out, nil
}

// environ builds the command environment: the process environment, then the
// build variables, then the job's env, then the invocation's env. Later
// entries win.
func (r *Runner) environ(inv executor.Invocation, workspace string) []string {
	env := os.Environ()
	env = append(env,
		EnvBuildNumber+"="+strconv.Itoa(inv.BuildNumber),
		EnvJobName+"="+inv.FullName,
		EnvWorkspace+"="+workspace,
	)
	env = appendSorted(env, inv.Job.Env)
	return appendSorted(env, inv.Env)
}

func appendSorted(env []string, vars map[string]string) []string {
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+vars[k])
	}
	return env
}
