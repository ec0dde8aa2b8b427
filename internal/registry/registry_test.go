package registry

import (
	"errors"
	"sync"
	"testing"

	"github.com/specialistvlad/gridci/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := New(Options{})
	require.NoError(t, r.Register(&model.Job{Name: "build"}))
	require.NoError(t, r.Register(&model.Job{Name: "test"}))

	job, err := r.Lookup("build")
	require.NoError(t, err)
	assert.Equal(t, "build", job.Name)
	assert.True(t, r.Has("test"))

	names := []string{}
	for _, j := range r.Jobs() {
		names = append(names, j.Name)
	}
	assert.Equal(t, []string{"build", "test"}, names)
}

func TestRegistry_DuplicateJob(t *testing.T) {
	r := New(Options{})
	require.NoError(t, r.Register(&model.Job{Name: "build"}))

	err := r.Register(&model.Job{Name: "build"})
	require.True(t, errors.Is(err, ErrDuplicateJob), "got %v", err)
	assert.Len(t, r.Jobs(), 1)
}

func TestRegistry_LookupMissing(t *testing.T) {
	_, err := New(Options{}).Lookup("deploy")
	require.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	require.Contains(t, err.Error(), `"deploy"`)
}

func TestRegistry_FrozenRejectsRegistration(t *testing.T) {
	r := New(Options{})
	require.NoError(t, r.Register(&model.Job{Name: "build"}))
	r.Freeze()
	r.Freeze()

	require.True(t, r.Frozen())
	err := r.Register(&model.Job{Name: "test"})
	require.True(t, errors.Is(err, ErrFrozen), "got %v", err)

	_, err = r.Lookup("build")
	require.NoError(t, err)
}

func TestRegistry_FullName(t *testing.T) {
	assert.Equal(t, "build", New(Options{}).FullName("build"))
	assert.Equal(t, "alice-build", New(Options{Namespace: "alice"}).FullName("build"))
}

func TestRegistry_ConcurrentLookupsAfterFreeze(t *testing.T) {
	r := New(Options{})
	require.NoError(t, r.Register(&model.Job{Name: "build"}))
	r.Freeze()

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Lookup("build")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
}

func TestValidateNamespace(t *testing.T) {
	for _, ns := range []string{"", "alice", "team.a", "ci_2-x"} {
		assert.NoError(t, ValidateNamespace(ns), ns)
	}
	for _, ns := range []string{"../../escaped", "a/b", "..", "-x", "a b", `a\b`} {
		assert.ErrorIs(t, ValidateNamespace(ns), ErrInvalidNamespace, ns)
	}
}
