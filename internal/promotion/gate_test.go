package promotion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/specialistvlad/gridci/internal/artifactstore"
	"github.com/specialistvlad/gridci/internal/inmemorystore"
	"github.com/specialistvlad/gridci/internal/model"
	"github.com/specialistvlad/gridci/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingPublisher struct {
	failOn string
	inner  artifactstore.Publisher
}

func (f *failingPublisher) Publish(ctx context.Context, ref model.ArtifactReference, repo string) (model.ArtifactReference, error) {
	if ref.Path == f.failOn {
		return model.ArtifactReference{}, errors.New("connection reset")
	}
	return f.inner.Publish(ctx, ref, repo)
}

// seed records a successful build of ns-build #42 with two archived files.
func seed(t *testing.T) (*inmemorystore.Store, *registry.Registry) {
	t.Helper()
	dir := t.TempDir()
	var refs []model.ArtifactReference
	for _, rel := range []string{"target/app.war", "target/app-sources.jar"} {
		loc := filepath.Join(dir, filepath.Base(rel))
		require.NoError(t, os.WriteFile(loc, []byte(rel), 0o644))
		refs = append(refs, model.ArtifactReference{
			ID: "ns-build#42/" + rel, Name: filepath.Base(rel), Path: rel, Location: loc,
		})
	}

	store := inmemorystore.New()
	ctx := context.Background()
	require.NoError(t, store.Record(ctx, &model.RunResult{Job: "ns-build", BuildNumber: 42, Status: model.StatusSuccess, Artifacts: refs}))
	require.NoError(t, store.Record(ctx, &model.RunResult{Job: "ns-build", BuildNumber: 43, Status: model.StatusFailure}))

	reg := registry.New(registry.Options{Namespace: "ns"})
	require.NoError(t, reg.Register(&model.Job{Name: "build", Trigger: model.NoTrigger{}}))
	return store, reg
}

func TestResolve(t *testing.T) {
	store, _ := seed(t)
	g := &Gate{Store: store}
	ctx := context.Background()

	refs, err := g.Resolve(ctx, "ns-build", 42, "")
	require.NoError(t, err)
	assert.Len(t, refs, 2)

	refs, err = g.Resolve(ctx, "ns-build", 42, "**/*.war")
	require.NoError(t, err)
	require.Len(t, refs, 1)
	assert.Equal(t, "ns-build#42/target/app.war", refs[0].ID)
}

func TestResolve_Unresolved(t *testing.T) {
	store, _ := seed(t)
	g := &Gate{Store: store}

	testCases := []struct {
		name       string
		build      int
		pattern    string
		wantReason string
	}{
		{name: "no record", build: 7, wantReason: "no recorded build"},
		{name: "failed build", build: 43, wantReason: "build did not succeed"},
		{name: "no match", build: 42, pattern: "*.zip", wantReason: `no artifact matches "*.zip"`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := g.Resolve(context.Background(), "ns-build", tc.build, tc.pattern)
			require.True(t, errors.Is(err, ErrUnresolvedArtifact), "got %v", err)

			var uerr *UnresolvedArtifactError
			require.True(t, errors.As(err, &uerr))
			assert.Equal(t, "ns-build", uerr.Job)
			assert.Equal(t, tc.build, uerr.BuildNumber)
			assert.Equal(t, tc.wantReason, uerr.Reason)
		})
	}
}

func TestPromote(t *testing.T) {
	store, reg := seed(t)
	root := t.TempDir()
	g := &Gate{Store: store, Publisher: &artifactstore.FileSystem{Root: root}, Registry: reg}

	res, err := g.Promote(context.Background(), Request{Job: "build", BuildNumber: 42, Repository: "libs-release", Pattern: "**/*.war"})
	require.NoError(t, err)
	assert.Equal(t, "ns-build", res.Job)
	require.Len(t, res.Published, 1)
	assert.FileExists(t, filepath.Join(root, "libs-release", "ns-build", "42", "target", "app.war"))

	_, err = g.Promote(context.Background(), Request{Job: "deploy", BuildNumber: 42, Repository: "libs"})
	assert.True(t, errors.Is(err, registry.ErrNotFound))
}

func TestPublish_Failure(t *testing.T) {
	store, _ := seed(t)
	g := &Gate{Store: store, Publisher: &failingPublisher{
		failOn: "target/app-sources.jar",
		inner:  &artifactstore.FileSystem{Root: t.TempDir()},
	}}
	ctx := context.Background()

	refs, err := g.Resolve(ctx, "ns-build", 42, "")
	require.NoError(t, err)

	published, err := g.Publish(ctx, refs, "libs")
	require.True(t, errors.Is(err, ErrPromotionFailed), "got %v", err)
	assert.Len(t, published, 1)

	var failure *PromotionFailure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, "ns-build#42/target/app-sources.jar", failure.Artifact)
	assert.Equal(t, []string{"ns-build#42/target/app.war"}, failure.Published)
	assert.ErrorContains(t, err, "connection reset")
}

func TestPublish_NoArtifactStore(t *testing.T) {
	_, err := (&Gate{}).Publish(context.Background(), []model.ArtifactReference{{ID: "x#1/a"}}, "libs")
	assert.True(t, errors.Is(err, ErrNoArtifactStore))
	assert.True(t, errors.Is(err, ErrPromotionFailed))
}
