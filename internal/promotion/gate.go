package promotion

import (
	"context"
	"errors"
	"fmt"

	"github.com/specialistvlad/gridci/internal/artifactstore"
	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/specialistvlad/gridci/internal/model"
	"github.com/specialistvlad/gridci/internal/publisher"
	"github.com/specialistvlad/gridci/internal/registry"
	"github.com/specialistvlad/gridci/internal/runstore"
)

// Gate resolves recorded artifacts and publishes them.
type Gate struct {
	Store     runstore.Store
	Publisher artifactstore.Publisher
	// Registry maps job names to namespaced full names in Promote. Optional.
	Registry *registry.Registry
}

// Request is a standalone promotion.
type Request struct {
	// Job is the registered job name, without namespace.
	Job         string
	BuildNumber int
	Repository  string
	// Pattern filters artifacts by path. Empty selects all of them.
	Pattern string
}

// Result lists what a promotion resolved and published.
type Result struct {
	Job         string
	BuildNumber int
	Repository  string
	Resolved    []model.ArtifactReference
	Published   []model.ArtifactReference
}

// Resolve returns the artifacts recorded for a successful build of job (a
// namespaced full name) that match pattern.
func (g *Gate) Resolve(ctx context.Context, job string, build int, pattern string) ([]model.ArtifactReference, error) {
	unresolved := func(reason string) error {
		return &UnresolvedArtifactError{Job: job, BuildNumber: build, Reason: reason}
	}

	result, err := g.Store.Get(ctx, job, build)
	if errors.Is(err, runstore.ErrNotFound) {
		return nil, unresolved("no recorded build")
	}
	if err != nil {
		return nil, fmt.Errorf("resolve %s#%d: %w", job, build, err)
	}
	if !result.Succeeded() {
		return nil, unresolved("build did not succeed")
	}

	var refs []model.ArtifactReference
	for _, ref := range result.Artifacts {
		if pattern != "" {
			ok, err := publisher.MatchPath(pattern, ref.Path)
			if err != nil {
				return nil, fmt.Errorf("resolve %s#%d: invalid pattern %q: %w", job, build, pattern, err)
			}
			if !ok {
				continue
			}
		}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		if pattern != "" {
			return nil, unresolved(fmt.Sprintf("no artifact matches %q", pattern))
		}
		return nil, unresolved("no artifact recorded")
	}

	ctxlog.FromContext(ctx).Debug("Resolved artifacts for promotion.", "job", job, "build", build, "count", len(refs))
	return refs, nil
}

// Publish copies every reference into repository, stopping at the first
// failure.
func (g *Gate) Publish(ctx context.Context, refs []model.ArtifactReference, repository string) ([]model.ArtifactReference, error) {
	if g.Publisher == nil {
		return nil, &PromotionFailure{Repository: repository, Err: ErrNoArtifactStore}
	}

	logger := ctxlog.FromContext(ctx).With("repository", repository)
	var published []model.ArtifactReference
	for _, ref := range refs {
		out, err := g.Publisher.Publish(ctx, ref, repository)
		if err != nil {
			var done []string
			for _, p := range published {
				done = append(done, p.ID)
			}
			return published, &PromotionFailure{Repository: repository, Artifact: ref.ID, Published: done, Err: err}
		}
		logger.Info("📦 Published artifact.", "artifact", ref.ID, "location", out.Location)
		published = append(published, out)
	}
	return published, nil
}

// Promote resolves and publishes one build outside of a pipeline run.
func (g *Gate) Promote(ctx context.Context, req Request) (*Result, error) {
	job := req.Job
	if g.Registry != nil {
		if _, err := g.Registry.Lookup(req.Job); err != nil {
			return nil, err
		}
		job = g.Registry.FullName(req.Job)
	}
	if req.Repository == "" {
		return nil, &PromotionFailure{Err: errors.New("a target repository is required")}
	}

	res := &Result{Job: job, BuildNumber: req.BuildNumber, Repository: req.Repository}
	refs, err := g.Resolve(ctx, job, req.BuildNumber, req.Pattern)
	if err != nil {
		return res, err
	}
	res.Resolved = refs

	res.Published, err = g.Publish(ctx, refs, req.Repository)
	return res, err
}
