package pipeline

import (
	"slices"
	"strings"

	"github.com/specialistvlad/gridci/internal/config"
)

// Stage is a unit of pipeline progression: one job, or a parallel group.
type Stage struct {
	Name     string
	Jobs     []string
	Parallel bool
}

// Single returns a sequential stage running one job.
func Single(job string) Stage {
	return Stage{Name: job, Jobs: []string{job}}
}

// Parallel returns a stage running the given jobs concurrently.
func Parallel(jobs ...string) Stage {
	return Stage{
		Name:     "parallel(" + strings.Join(jobs, ",") + ")",
		Jobs:     slices.Clone(jobs),
		Parallel: true,
	}
}

// Named returns a copy of the stage with a display name.
func (s Stage) Named(name string) Stage {
	s.Name = name
	return s
}

// Sequential composes stages in declaration order.
func Sequential(stages ...Stage) []Stage {
	return slices.Clone(stages)
}

// Promotion is the trailing stage that publishes the artifacts of the From
// job's build through Job.
type Promotion struct {
	Job        string
	From       string
	Repository string
	// Pattern filters artifacts by name. Empty selects all of them.
	Pattern string
}

// Definition is an unvalidated pipeline.
type Definition struct {
	Name      string
	Stages    []Stage
	Promotion *Promotion
}

// FromConfig translates a raw pipeline block into a Definition. A stage with
// a `parallel` list becomes a parallel group, even with a single entry.
func FromConfig(cfg *config.Pipeline) Definition {
	def := Definition{Name: cfg.Name}
	for _, s := range cfg.Stages {
		var stage Stage
		switch {
		case s.Job != "" && len(s.Parallel) > 0:
			// Not a valid shape; Build reports it.
			stage = Stage{Jobs: append([]string{s.Job}, s.Parallel...)}
		case len(s.Parallel) > 0:
			stage = Parallel(s.Parallel...)
		case s.Job != "":
			stage = Single(s.Job)
		}
		if s.Name != "" {
			stage = stage.Named(s.Name)
		}
		def.Stages = append(def.Stages, stage)
	}
	if p := cfg.Promotion; p != nil {
		def.Promotion = &Promotion{Job: p.Job, From: p.From, Repository: p.Repository, Pattern: p.Pattern}
	}
	return def
}
