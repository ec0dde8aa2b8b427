package registry

import (
	"errors"
	"fmt"
	"sync"

	"github.com/specialistvlad/gridci/internal/model"
)

var (
	// ErrDuplicateJob is returned when a job name is registered twice.
	ErrDuplicateJob = errors.New("duplicate job")
	// ErrNotFound is returned when a looked-up job does not exist.
	ErrNotFound = errors.New("job not found")
	// ErrFrozen is returned when registering into a frozen registry.
	ErrFrozen = errors.New("registry is frozen")
	// ErrInvalidNamespace is returned for a namespace that is not a valid
	// job name.
	ErrInvalidNamespace = errors.New("invalid namespace")
)

// ValidateNamespace checks that ns keeps full names inside workspace, log
// and archive roots. The empty namespace is valid.
func ValidateNamespace(ns string) error {
	if ns == "" || model.ValidName(ns) {
		return nil
	}
	return fmt.Errorf("%w %q: must start with a letter or digit and contain only letters, digits, '.', '_' or '-'", ErrInvalidNamespace, ns)
}

// Options is the immutable configuration of a Registry.
type Options struct {
	// Namespace prefixes every job's full name, e.g. "alice" turns job
	// "build" into "alice-build".
	Namespace string
}

// Registry stores jobs by name.
type Registry struct {
	opts Options

	mu     sync.RWMutex
	jobs   map[string]*model.Job
	order  []string
	frozen bool
}

// New creates an empty Registry.
func New(opts Options) *Registry {
	return &Registry{
		opts: opts,
		jobs: make(map[string]*model.Job),
	}
}

// Register adds a job definition.
func (r *Registry) Register(job *model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("cannot register job %q: %w", job.Name, ErrFrozen)
	}
	if _, exists := r.jobs[job.Name]; exists {
		return fmt.Errorf("job %q: %w", job.Name, ErrDuplicateJob)
	}
	r.jobs[job.Name] = job
	r.order = append(r.order, job.Name)
	return nil
}

// Lookup returns the job with the given short name.
func (r *Registry) Lookup(name string) (*model.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[name]
	if !ok {
		return nil, fmt.Errorf("job %q: %w", name, ErrNotFound)
	}
	return job, nil
}

// Has reports whether a job with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, err := r.Lookup(name)
	return err == nil
}

// Freeze makes the registry read-only. It is safe to call more than once.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Jobs returns all jobs in registration order.
func (r *Registry) Jobs() []*model.Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := make([]*model.Job, 0, len(r.order))
	for _, name := range r.order {
		jobs = append(jobs, r.jobs[name])
	}
	return jobs
}

// Namespace returns the configured namespace.
func (r *Registry) Namespace() string {
	return r.opts.Namespace
}

// FullName returns the namespaced name of a job, used for workspaces and
// run records.
func (r *Registry) FullName(name string) string {
	if r.opts.Namespace == "" {
		return name
	}
	return r.opts.Namespace + "-" + name
}
