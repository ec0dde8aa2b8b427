package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestModel_Merge(t *testing.T) {
	m := NewModel()
	require.NoError(t, m.Merge(&Model{
		Jobs:      []*Job{{Name: "build"}},
		Pipelines: []*Pipeline{{Name: "release"}},
	}))
	require.NoError(t, m.Merge(&Model{Jobs: []*Job{{Name: "test"}}}))
	require.NoError(t, m.Merge(nil))

	require.Len(t, m.Jobs, 2)
	require.NotNil(t, m.Pipeline("release"))
	require.Nil(t, m.Pipeline("nightly"))

	err := m.Merge(&Model{Pipelines: []*Pipeline{{Name: "release"}}})
	require.ErrorContains(t, err, `pipeline "release" is defined more than once`)
}
