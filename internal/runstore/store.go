package runstore

import (
	"context"
	"errors"
	"sort"

	"github.com/specialistvlad/gridci/internal/model"
)

var (
	// ErrNotFound is returned when no record exists for a job and build number.
	ErrNotFound = errors.New("run record not found")
	// ErrAlreadyRecorded is returned when a record is written twice.
	ErrAlreadyRecorded = errors.New("run record already exists")
)

// Store keeps the execution history of jobs. Job names are namespaced full
// names. Implementations must be safe for concurrent use.
type Store interface {
	// NextBuildNumber allocates the next build number of a job. Numbers start
	// at 1 and are never reused.
	NextBuildNumber(ctx context.Context, job string) (int, error)

	// Record stores the result of one execution. A second record for the same
	// job and build number fails with ErrAlreadyRecorded.
	Record(ctx context.Context, result *model.RunResult) error

	// Get returns one record or ErrNotFound.
	Get(ctx context.Context, job string, build int) (*model.RunResult, error)

	// List returns the records of a job, newest first.
	List(ctx context.Context, job string) ([]*model.RunResult, error)

	// Prune applies a retention policy to a job. It returns the artifacts that
	// are no longer referenced by any record.
	Prune(ctx context.Context, job string, retention model.Retention) ([]model.ArtifactReference, error)
}

// Seeder is implemented by stores whose counters can be moved forward, so a
// new store can continue the numbering of an older installation.
type Seeder interface {
	SetNextBuildNumber(job string, n int)
}

// Plan is the outcome of applying a retention policy to a job's history.
type Plan struct {
	// Delete lists build numbers whose records are dropped.
	Delete []int
	// Strip lists build numbers that keep their record but lose their artifacts.
	Strip []int
	// Released are the artifacts of every deleted or stripped record.
	Released []model.ArtifactReference
}

// Empty reports whether the plan changes nothing.
func (p Plan) Empty() bool {
	return len(p.Delete) == 0 && len(p.Strip) == 0
}

// PlanRetention decides which records a retention policy drops. The newest
// retention.Builds records are kept, and only the newest retention.Artifacts
// of those keep their artifacts. Zero means unlimited.
func PlanRetention(results []*model.RunResult, retention model.Retention) Plan {
	sorted := make([]*model.RunResult, len(results))
	copy(sorted, results)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].BuildNumber > sorted[j].BuildNumber
	})

	var plan Plan
	for i, r := range sorted {
		switch {
		case retention.Builds > 0 && i >= retention.Builds:
			plan.Delete = append(plan.Delete, r.BuildNumber)
			plan.Released = append(plan.Released, r.Artifacts...)
		case retention.Artifacts > 0 && i >= retention.Artifacts && len(r.Artifacts) > 0:
			plan.Strip = append(plan.Strip, r.BuildNumber)
			plan.Released = append(plan.Released, r.Artifacts...)
		}
	}
	return plan
}

// Clone returns a deep copy of a record so callers never share slices with a
// store.
func Clone(r *model.RunResult) *model.RunResult {
	if r == nil {
		return nil
	}
	c := *r
	if r.Artifacts != nil {
		c.Artifacts = append([]model.ArtifactReference(nil), r.Artifacts...)
	}
	if r.Reports != nil {
		c.Reports = make([]model.Report, len(r.Reports))
		for i, rep := range r.Reports {
			rep.Files = append([]string(nil), rep.Files...)
			if rep.Summary != nil {
				summary := make(map[string]int, len(rep.Summary))
				for k, v := range rep.Summary {
					summary[k] = v
				}
				rep.Summary = summary
			}
			c.Reports[i] = rep
		}
	}
	return &c
}
