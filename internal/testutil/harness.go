package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/gridci/internal/app"
	"github.com/specialistvlad/gridci/internal/artifactstore"
	"github.com/specialistvlad/gridci/internal/inmemorystore"
	"github.com/stretchr/testify/require"
)

// Harness runs an App against definition files in a temporary directory,
// with a FakeRunner, an in-memory store and a filesystem repository.
type Harness struct {
	T          *testing.T
	Dir        string
	Defs       string
	Repository string
	Settings   app.Settings
	Runner     *FakeRunner
	Store      *inmemorystore.Store
	Log        *SafeBuffer
	Options    []app.Option
}

// HarnessResult holds the outcomes of one App run.
type HarnessResult struct {
	LogOutput string
	Err       error
	App       *app.App
}

// NewHarness writes files (name to content) into a fresh definitions
// directory.
func NewHarness(t *testing.T, files map[string]string) *Harness {
	t.Helper()

	dir := t.TempDir()
	defs := filepath.Join(dir, "defs")
	require.NoError(t, os.MkdirAll(defs, 0o755))
	for name, content := range files {
		path := filepath.Join(defs, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}

	repo := filepath.Join(dir, "repository")
	h := &Harness{
		T:          t,
		Dir:        dir,
		Defs:       defs,
		Repository: repo,
		Settings: app.Settings{
			WorkspaceRoot: filepath.Join(dir, "workspace"),
			ArchiveRoot:   filepath.Join(dir, "archive"),
			LogRoot:       filepath.Join(dir, "logs"),
			Store:         app.StoreSettings{Backend: app.StoreMemory},
			Artifacts:     app.ArtifactSettings{Backend: app.ArtifactsFileSystem, Root: repo},
		},
		Runner: &FakeRunner{Root: filepath.Join(dir, "workspace")},
		Store:  inmemorystore.New(),
		Log:    &SafeBuffer{},
	}

	t.Cleanup(func() {
		if os.Getenv("GRIDCI_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), h.Log.String())
		}
	})
	return h
}

// Run creates an App for cfg (Paths default to the definitions directory)
// and runs it with ctx.
func (h *Harness) Run(ctx context.Context, cfg app.Config) *HarnessResult {
	h.T.Helper()

	if len(cfg.Paths) == 0 {
		cfg.Paths = []string{h.Defs}
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "debug"
	}
	validated, err := app.NewConfig(cfg)
	require.NoError(h.T, err)

	opts := append([]app.Option{
		app.WithSettings(h.Settings),
		app.WithRunner(h.Runner),
		app.WithStore(h.Store),
		app.WithPublisher(&artifactstore.FileSystem{Root: h.Repository}),
	}, h.Options...)

	a, err := app.NewApp(h.Log, validated, opts...)
	require.NoError(h.T, err)

	err = a.Run(ctx)
	return &HarnessResult{LogOutput: h.Log.String(), Err: err, App: a}
}

// RepositoryFile returns the content of a published file, relative to the
// repository root.
func (h *Harness) RepositoryFile(rel string) string {
	h.T.Helper()
	data, err := os.ReadFile(filepath.Join(h.Repository, filepath.FromSlash(rel)))
	require.NoError(h.T, err)
	return string(data)
}
