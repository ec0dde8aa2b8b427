package executor

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/specialistvlad/gridci/internal/model"
)

// JobResult is one job execution inside a run.
type JobResult struct {
	// Job is the registered name, FullName the namespaced one.
	Job         string
	FullName    string
	BuildNumber int
	Result      *model.RunResult
	Err         error
}

// Succeeded reports whether the job succeeded.
func (r *JobResult) Succeeded() bool {
	return r != nil && r.Err == nil && r.Result.Succeeded()
}

// StageResult is the outcome of one stage.
type StageResult struct {
	Name     string
	Parallel bool
	Status   StageStatus
	// Jobs holds one entry per job in declaration order. Empty for skipped
	// stages.
	Jobs []*JobResult
}

// PromotionResult is the outcome of the promotion stage.
type PromotionResult struct {
	Job         string
	From        string
	BuildNumber int
	Repository  string
	Resolved    []model.ArtifactReference
	Published   []model.ArtifactReference
	// Execution is the promotion job's own result, when it ran.
	Execution *JobResult
	Err       error
}

// Succeeded reports whether the promotion finished without error.
func (p *PromotionResult) Succeeded() bool {
	return p != nil && p.Err == nil
}

// Run is one execution of a pipeline. Fields are written by the executor only;
// use Snapshot to read a run that may still be in progress.
type Run struct {
	mu sync.RWMutex

	ID           uuid.UUID
	Pipeline     string
	State        State
	Stages       []*StageResult
	FailedStages []string
	FailedJobs   []string
	Promotion    *PromotionResult
	StartedAt    time.Time
	FinishedAt   time.Time
}

func newRun(pipeline string) *Run {
	return &Run{ID: uuid.New(), Pipeline: pipeline, State: StatePending}
}

func (r *Run) setState(to State, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := transition(r.State, to); err != nil {
		return err
	}
	r.State = to
	switch to {
	case StateRunning:
		r.StartedAt = at
	case StateSucceeded, StateFailed:
		r.FinishedAt = at
	}
	return nil
}

func (r *Run) addStage(s *StageResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Stages = append(r.Stages, s)
	if s.Status == StageFailed {
		r.FailedStages = append(r.FailedStages, s.Name)
		for _, j := range s.Jobs {
			if !j.Succeeded() {
				r.FailedJobs = append(r.FailedJobs, j.Job)
			}
		}
	}
}

func (r *Run) setPromotion(p *PromotionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Promotion = p
}

// Result returns the execution of a stage job by registered name, or nil.
func (r *Run) Result(job string) *JobResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.Stages {
		for _, j := range s.Jobs {
			if j.Job == job {
				return j
			}
		}
	}
	return nil
}

// Artifacts lists the artifacts produced by the run's successful jobs.
func (r *Run) Artifacts() []model.ArtifactReference {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []model.ArtifactReference
	for _, s := range r.Stages {
		for _, j := range s.Jobs {
			if j.Succeeded() {
				out = append(out, j.Result.Artifacts...)
			}
		}
	}
	return out
}

// Summary is a read-only copy of a run.
type Summary struct {
	ID           string                    `json:"id"`
	Pipeline     string                    `json:"pipeline"`
	State        State                     `json:"state"`
	Stages       []StageSummary            `json:"stages"`
	FailedStages []string                  `json:"failed_stages,omitempty"`
	Artifacts    []model.ArtifactReference `json:"artifacts,omitempty"`
	Promotion    *PromotionSummary         `json:"promotion,omitempty"`
	StartedAt    time.Time                 `json:"started_at,omitempty"`
	FinishedAt   time.Time                 `json:"finished_at,omitempty"`
}

// StageSummary is the read-only copy of a stage.
type StageSummary struct {
	Name     string       `json:"name"`
	Parallel bool         `json:"parallel,omitempty"`
	Status   StageStatus  `json:"status"`
	Jobs     []JobSummary `json:"jobs,omitempty"`
}

// JobSummary is the read-only copy of a job execution.
type JobSummary struct {
	Job         string       `json:"job"`
	BuildNumber int          `json:"build_number"`
	Status      model.Status `json:"status"`
	Error       string       `json:"error,omitempty"`
}

// PromotionSummary is the read-only copy of a promotion.
type PromotionSummary struct {
	Job         string   `json:"job"`
	From        string   `json:"from"`
	BuildNumber int      `json:"build_number"`
	Repository  string   `json:"repository"`
	Published   []string `json:"published,omitempty"`
	Error       string   `json:"error,omitempty"`
}

func summarizeJob(j *JobResult) JobSummary {
	s := JobSummary{Job: j.Job, BuildNumber: j.BuildNumber, Status: model.StatusFailure}
	if j.Succeeded() {
		s.Status = model.StatusSuccess
	}
	if j.Err != nil {
		s.Error = j.Err.Error()
	}
	return s
}

// Snapshot copies the run under its lock.
func (r *Run) Snapshot() Summary {
	artifacts := r.Artifacts()

	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Summary{
		ID:           r.ID.String(),
		Pipeline:     r.Pipeline,
		State:        r.State,
		FailedStages: append([]string(nil), r.FailedStages...),
		Artifacts:    artifacts,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
	}
	for _, st := range r.Stages {
		ss := StageSummary{Name: st.Name, Parallel: st.Parallel, Status: st.Status}
		for _, j := range st.Jobs {
			ss.Jobs = append(ss.Jobs, summarizeJob(j))
		}
		s.Stages = append(s.Stages, ss)
	}
	if p := r.Promotion; p != nil {
		ps := &PromotionSummary{Job: p.Job, From: p.From, BuildNumber: p.BuildNumber, Repository: p.Repository}
		for _, ref := range p.Published {
			ps.Published = append(ps.Published, ref.ID)
		}
		if p.Err != nil {
			ps.Error = p.Err.Error()
		}
		s.Promotion = ps
	}
	return s
}
