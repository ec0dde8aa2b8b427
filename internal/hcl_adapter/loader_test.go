package hcl_adapter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/specialistvlad/gridci/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jobsHCL = `
job "build" {
  description = "Build ${upper(namespace)}"
  command     = "mvn -B package"
  timeout     = "30m"
  env = {
    TARGET = format("%s-release", namespace)
  }
  scm {
    url        = "https://git.example.com/app.git"
    credential = "git-ci"
  }
  trigger "poll" {
    interval = "5m"
  }
  retention {
    builds    = 10
    artifacts = 3
  }
  publisher "archive_artifact" {
    pattern     = "target/*.war"
    fingerprint = true
  }
  publisher "static_analysis" {
    tool       = "checkstyle"
    pattern    = "target/checkstyle-result.xml"
    max_issues = 20
  }
  publisher "code_coverage" {
    pattern           = "**/jacoco.xml"
    min_line_coverage = 70.5
  }
}

job "test" {
  command = "mvn test"
  trigger "upstream" {
    job = "build"
  }
}
`

const pipelineHCL = `
pipeline "release" {
  stage "build" {
    job = "build"
  }
  stage "verify" {
    parallel = [lower("TEST"), join("", ["met", "rics"])]
  }
  promotion {
    job        = "promote"
    from       = "build"
    repository = "libs-release-local"
  }
}
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "jobs.hcl", jobsHCL)
	writeFile(t, dir, "pipeline.hcl", pipelineHCL)
	writeFile(t, dir, "notes.txt", "ignored")

	model, err := NewLoader("alice").Load(context.Background(), dir)
	require.NoError(t, err)

	maxIssues := 20
	coverage := 70.5
	want := &config.Model{
		Jobs: []*config.Job{
			{
				Name:        "build",
				Description: "Build ALICE",
				Command:     "mvn -B package",
				Timeout:     "30m",
				Env:         map[string]string{"TARGET": "alice-release"},
				SCM:         &config.SCM{URL: "https://git.example.com/app.git", Credential: "git-ci"},
				Trigger:     &config.Trigger{Kind: "poll", Interval: "5m"},
				Retention:   &config.Retention{Builds: 10, Artifacts: 3},
				Publishers: []*config.Publisher{
					{Kind: "archive_artifact", Pattern: "target/*.war", Fingerprint: true},
					{Kind: "static_analysis", Tool: "checkstyle", Pattern: "target/checkstyle-result.xml", MaxIssues: &maxIssues},
					{Kind: "code_coverage", Pattern: "**/jacoco.xml", MinLineCoverage: &coverage},
				},
			},
			{
				Name:    "test",
				Command: "mvn test",
				Trigger: &config.Trigger{Kind: "upstream", Job: "build"},
			},
		},
		Pipelines: []*config.Pipeline{
			{
				Name: "release",
				Stages: []*config.Stage{
					{Name: "build", Job: "build"},
					{Name: "verify", Parallel: []string{"test", "metrics"}},
				},
				Promotion: &config.Promotion{Job: "promote", From: "build", Repository: "libs-release-local"},
			},
		},
	}

	ignoreSource := cmpopts.IgnoreFields(config.Job{}, "Source")
	ignorePipelineSource := cmpopts.IgnoreFields(config.Pipeline{}, "Source")
	if diff := cmp.Diff(want, model, ignoreSource, ignorePipelineSource, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, model.Jobs[0].Source, "jobs.hcl")
}

func TestLoad_DuplicatePipeline(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.hcl", pipelineHCL)
	writeFile(t, dir, "b.hcl", pipelineHCL)

	_, err := NewLoader("").Load(context.Background(), dir)
	require.ErrorContains(t, err, `pipeline "release" is defined more than once`)
}

func TestLoad_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
		wantErr string
	}{
		{name: "syntax", content: `job "x" {`, wantErr: "failed to parse HCL file"},
		{name: "unknown block", content: `view "x" {}`, wantErr: "failed to decode HCL file"},
		{name: "missing label", content: `job { command = "x" }`, wantErr: "failed to decode HCL file"},
		{name: "two triggers", content: `job "x" {
  trigger "poll" { interval = "1m" }
  trigger "upstream" { job = "y" }
}`, wantErr: "at most one is allowed"},
		{name: "unknown variable", content: `job "x" { command = owner }`, wantErr: "failed to decode HCL file"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "bad.hcl", tc.content)
			_, err := NewLoader("").Load(context.Background(), dir)
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestLoad_MissingPathIsEmpty(t *testing.T) {
	model, err := NewLoader("").Load(context.Background(), filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, model.Jobs)
	assert.Empty(t, model.Pipelines)
}
