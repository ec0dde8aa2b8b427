package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/gridci/internal/app"
	"github.com/specialistvlad/gridci/internal/cli"
	"github.com/specialistvlad/gridci/internal/registry"
	"github.com/stretchr/testify/require"
)

func testSettings(t *testing.T) app.Option {
	root := t.TempDir()
	return app.WithSettings(app.Settings{
		WorkspaceRoot: filepath.Join(root, "workspace"),
		ArchiveRoot:   filepath.Join(root, "archive"),
		LogRoot:       filepath.Join(root, "logs"),
		Store:         app.StoreSettings{Backend: app.StoreMemory},
		Artifacts:     app.ArtifactSettings{Backend: app.ArtifactsFileSystem, Root: filepath.Join(root, "repository")},
	})
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// The "-h" (help) flag should cause cli.Parse to return `shouldExit=true`.
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(context.Background(), out, []string{"-h"})

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	err := run(context.Background(), &bytes.Buffer{}, []string{"--this-is-not-a-valid-flag"})

	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, cli.CodeUsage, exitErr.Code)
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}

func TestRun_ValidationFailureExitsOne(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// The pipeline references a job that is never defined.
	path := writeFile(t, "release.hcl", `
job "build" {
  command = "true"
}

pipeline "release" {
  stage "build" { job = "build" }
  stage "verify" { parallel = ["test", "metrics"] }
}
`)

	// --- Act ---
	err := run(context.Background(), &bytes.Buffer{}, []string{"validate", path}, testSettings(t))

	// --- Assert ---
	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, cli.CodeFailure, exitErr.Code)
	require.Contains(t, exitErr.Message, `references job "test"`)
	require.Contains(t, exitErr.Message, `references job "metrics"`)
}

func TestRun_SyntaxErrorExitsOne(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "main.hcl", `
job "build" {
  command = "true"
`)

	err := run(context.Background(), &bytes.Buffer{}, []string{path}, testSettings(t))

	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, cli.CodeFailure, exitErr.Code)
	require.Contains(t, exitErr.Message, "failed to load definitions")
}

func TestRun_InvalidSettingsIsUsageError(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "main.hcl", `job "build" { command = "true" }`)
	bad := app.WithSettings(app.Settings{Store: app.StoreSettings{Backend: "etcd"}})

	err := run(context.Background(), &bytes.Buffer{}, []string{path}, bad)

	var exitErr *cli.ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, cli.CodeUsage, exitErr.Code)
	require.Contains(t, exitErr.Message, `unknown store backend "etcd"`)
}

func TestRun_NamespaceMustBeJobName(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "main.hcl", `job "build" { command = "true" }`)
	for _, ns := range []string{"../../escaped", "a/b"} {
		err := run(context.Background(), &bytes.Buffer{}, []string{"-namespace", ns, path}, testSettings(t))

		var exitErr *cli.ExitError
		require.ErrorAs(t, err, &exitErr, ns)
		require.Equal(t, cli.CodeUsage, exitErr.Code)
		require.ErrorIs(t, err, registry.ErrInvalidNamespace)
	}
}

func TestRun_Validate(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "release.hcl", `
job "build" {
  command = "true"
}

pipeline "release" {
  stage "build" { job = "build" }
}
`)
	out := &bytes.Buffer{}
	require.NoError(t, run(context.Background(), out, []string{"validate", path}, testSettings(t)))
	require.Contains(t, out.String(), "Definitions are valid.")
}
