package config

import "fmt"

// Model is the unified representation of all loaded definition files.
type Model struct {
	Jobs      []*Job
	Pipelines []*Pipeline
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{}
}

// Merge appends the jobs and pipelines of other into m. Job name clashes are
// left for the registry to report; pipeline name clashes fail here.
func (m *Model) Merge(other *Model) error {
	if other == nil {
		return nil
	}
	m.Jobs = append(m.Jobs, other.Jobs...)
	for _, p := range other.Pipelines {
		if m.Pipeline(p.Name) != nil {
			return fmt.Errorf("pipeline %q is defined more than once", p.Name)
		}
		m.Pipelines = append(m.Pipelines, p)
	}
	return nil
}

// Pipeline returns the pipeline with the given name, or nil.
func (m *Model) Pipeline(name string) *Pipeline {
	for _, p := range m.Pipelines {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// Job is the raw representation of a `job` block.
type Job struct {
	Name        string
	Description string
	Command     string
	Timeout     string
	Env         map[string]string
	SCM         *SCM
	Trigger     *Trigger
	Retention   *Retention
	Publishers  []*Publisher
	Source      string
}

// SCM describes where a job checks its sources out from.
type SCM struct {
	URL        string
	Branch     string
	Credential string
}

// Trigger is the raw representation of a `trigger` block.
type Trigger struct {
	Kind     string
	Interval string
	Job      string
}

// Retention limits how many builds and archived artifacts are kept.
type Retention struct {
	Builds    int
	Artifacts int
}

// Publisher is the raw representation of a `publisher` block. Only the
// fields relevant to Kind are meaningful.
type Publisher struct {
	Kind            string
	Pattern         string
	Tool            string
	Fingerprint     bool
	AllowEmpty      bool
	AllowFailures   bool
	MaxIssues       *int
	MinLineCoverage *float64
}

// Pipeline is the raw representation of a `pipeline` block.
type Pipeline struct {
	Name      string
	Stages    []*Stage
	Promotion *Promotion
	Source    string
}

// Stage is either a single job or a parallel group of jobs.
type Stage struct {
	Name     string
	Job      string
	Parallel []string
}

// Promotion is the raw representation of a `promotion` block.
type Promotion struct {
	Job        string
	From       string
	Repository string
	Pattern    string
}
