package scm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/specialistvlad/gridci/internal/model"
)

// ErrBranchNotFound is returned when the remote has no such branch.
var ErrBranchNotFound = errors.New("branch not found")

// Client is the SCM collaborator used by the command runner and by poll
// triggers.
type Client interface {
	Checkout(ctx context.Context, workspace string, src model.SCM) error
	Revision(ctx context.Context, src model.SCM) (string, error)
}

// Git drives the git command line client.
type Git struct {
	// Binary defaults to "git" on PATH.
	Binary      string
	Credentials CredentialSource
}

var _ Client = (*Git)(nil)

func branch(src model.SCM) string {
	if src.Branch == "" {
		return model.DefaultBranch
	}
	return src.Branch
}

// Checkout makes workspace a clean checkout of the remote branch. Existing
// workspaces are fetched and reset instead of cloned again.
func (g *Git) Checkout(ctx context.Context, workspace string, src model.SCM) error {
	logger := ctxlog.FromContext(ctx).With("scm", src.URL, "branch", branch(src))

	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	if _, err := os.Stat(filepath.Join(workspace, ".git")); errors.Is(err, os.ErrNotExist) {
		logger.Debug("Initializing workspace repository.", "workspace", workspace)
		if _, err := g.run(ctx, workspace, src, "init", "--quiet"); err != nil {
			return err
		}
		if _, err := g.run(ctx, workspace, src, "remote", "add", "origin", src.URL); err != nil {
			return err
		}
	} else if _, err := g.run(ctx, workspace, src, "remote", "set-url", "origin", src.URL); err != nil {
		return err
	}

	if _, err := g.run(ctx, workspace, src, "fetch", "--quiet", "origin", branch(src)); err != nil {
		return err
	}
	if _, err := g.run(ctx, workspace, src, "checkout", "--quiet", "--force", "-B", branch(src), "FETCH_HEAD"); err != nil {
		return err
	}
	logger.Debug("Checked out sources.", "workspace", workspace)
	return nil
}

// Revision returns the commit the remote branch points at.
func (g *Git) Revision(ctx context.Context, src model.SCM) (string, error) {
	out, err := g.run(ctx, "", src, "ls-remote", src.URL, "refs/heads/"+branch(src))
	if err != nil {
		return "", err
	}
	rev, _, _ := strings.Cut(strings.TrimSpace(out), "\t")
	if rev == "" {
		return "", fmt.Errorf("%w: %s on %s", ErrBranchNotFound, branch(src), src.URL)
	}
	return rev, nil
}

// command builds the git invocation. Credentials travel in the environment
// so they never show up in the process arguments.
func (g *Git) command(ctx context.Context, dir string, src model.SCM, args ...string) (*exec.Cmd, error) {
	env := append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	if src.Credential != "" {
		if g.Credentials == nil {
			return nil, fmt.Errorf("%w %q: no credential source configured", ErrUnknownCredential, src.Credential)
		}
		cred, err := g.Credentials.Credential(src.Credential)
		if err != nil {
			return nil, err
		}
		env = append(env,
			"GIT_CONFIG_COUNT=1",
			"GIT_CONFIG_KEY_0=http.extraHeader",
			"GIT_CONFIG_VALUE_0=Authorization: "+cred.AuthHeader(),
		)
	}

	bin := g.Binary
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = dir
	cmd.Env = env
	return cmd, nil
}

func (g *Git) run(ctx context.Context, dir string, src model.SCM, args ...string) (string, error) {
	cmd, err := g.command(ctx, dir, src, args...)
	if err != nil {
		return "", err
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
