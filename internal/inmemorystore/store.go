package inmemorystore

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/specialistvlad/gridci/internal/model"
	"github.com/specialistvlad/gridci/internal/runstore"
)

// Store is an in-memory implementation of runstore.Store.
type Store struct {
	records sync.Map // Key: "<job>#<build>", Value: *model.RunResult

	mu       sync.Mutex
	counters map[string]int   // Last allocated build number per job.
	index    map[string][]int // Recorded build numbers per job.
}

var _ runstore.Store = (*Store)(nil)

// New creates a new, empty in-memory store.
func New() *Store {
	return &Store{
		counters: make(map[string]int),
		index:    make(map[string][]int),
	}
}

func key(job string, build int) string {
	return fmt.Sprintf("%s#%d", job, build)
}

// NextBuildNumber allocates the next build number of a job.
func (s *Store) NextBuildNumber(ctx context.Context, job string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[job]++
	return s.counters[job], nil
}

var _ runstore.Seeder = (*Store)(nil)

// SetNextBuildNumber makes the next allocation for job return n. Lower values
// than an already allocated number are ignored so numbers are never reused.
func (s *Store) SetNextBuildNumber(job string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n-1 > s.counters[job] {
		s.counters[job] = n - 1
	}
}

// Record stores a copy of the result. Writing the same job and build twice
// fails with runstore.ErrAlreadyRecorded.
func (s *Store) Record(ctx context.Context, result *model.RunResult) error {
	k := key(result.Job, result.BuildNumber)
	if _, loaded := s.records.LoadOrStore(k, runstore.Clone(result)); loaded {
		return fmt.Errorf("%w: %s", runstore.ErrAlreadyRecorded, k)
	}

	s.mu.Lock()
	s.index[result.Job] = append(s.index[result.Job], result.BuildNumber)
	if result.BuildNumber > s.counters[result.Job] {
		s.counters[result.Job] = result.BuildNumber
	}
	s.mu.Unlock()
	return nil
}

// Get returns a copy of one record.
func (s *Store) Get(ctx context.Context, job string, build int) (*model.RunResult, error) {
	v, ok := s.records.Load(key(job, build))
	if !ok {
		return nil, fmt.Errorf("%w: %s", runstore.ErrNotFound, key(job, build))
	}
	return runstore.Clone(v.(*model.RunResult)), nil
}

// List returns copies of a job's records, newest first.
func (s *Store) List(ctx context.Context, job string) ([]*model.RunResult, error) {
	s.mu.Lock()
	builds := slices.Clone(s.index[job])
	s.mu.Unlock()

	slices.Sort(builds)
	slices.Reverse(builds)

	out := make([]*model.RunResult, 0, len(builds))
	for _, b := range builds {
		if v, ok := s.records.Load(key(job, b)); ok {
			out = append(out, runstore.Clone(v.(*model.RunResult)))
		}
	}
	return out, nil
}

// Prune applies a retention policy to a job.
func (s *Store) Prune(ctx context.Context, job string, retention model.Retention) ([]model.ArtifactReference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var history []*model.RunResult
	for _, b := range s.index[job] {
		if v, ok := s.records.Load(key(job, b)); ok {
			history = append(history, v.(*model.RunResult))
		}
	}

	plan := runstore.PlanRetention(history, retention)
	if plan.Empty() {
		return nil, nil
	}

	for _, b := range plan.Delete {
		s.records.Delete(key(job, b))
	}
	s.index[job] = slices.DeleteFunc(s.index[job], func(b int) bool {
		return slices.Contains(plan.Delete, b)
	})
	for _, b := range plan.Strip {
		if v, ok := s.records.Load(key(job, b)); ok {
			stripped := runstore.Clone(v.(*model.RunResult))
			stripped.Artifacts = nil
			s.records.Store(key(job, b), stripped)
		}
	}
	return plan.Released, nil
}
