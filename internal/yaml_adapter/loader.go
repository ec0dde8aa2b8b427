// Package yaml_adapter loads job and pipeline definitions from YAML files
// into the format-agnostic config.Model. The document mirrors the HCL layout:
//
//	jobs:
//	  build:
//	    command: mvn -B package
//	    publishers:
//	      - kind: archive_artifact
//	        pattern: target/*.war
//	pipelines:
//	  release:
//	    stages:
//	      - name: build
//	        job: build
//	      - name: verify
//	        parallel: [test, metrics]
//	    promotion:
//	      job: promote
//	      from: build
//	      repository: libs-release-local
package yaml_adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/specialistvlad/gridci/internal/config"
	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/specialistvlad/gridci/internal/fsutil"
	"gopkg.in/yaml.v3"
)

// Extensions are the file extensions the loader reads.
var Extensions = []string{".yaml", ".yml"}

type document struct {
	Jobs      map[string]*jobDoc      `yaml:"jobs"`
	Pipelines map[string]*pipelineDoc `yaml:"pipelines"`
}

type jobDoc struct {
	Description string            `yaml:"description"`
	Command     string            `yaml:"command"`
	Timeout     string            `yaml:"timeout"`
	Env         map[string]string `yaml:"env"`
	SCM         *config.SCM       `yaml:"scm"`
	Trigger     *triggerDoc       `yaml:"trigger"`
	Retention   *retentionDoc     `yaml:"retention"`
	Publishers  []*publisherDoc   `yaml:"publishers"`
}

type triggerDoc struct {
	Kind     string `yaml:"kind"`
	Interval string `yaml:"interval"`
	Job      string `yaml:"job"`
}

type retentionDoc struct {
	Builds    int `yaml:"builds"`
	Artifacts int `yaml:"artifacts"`
}

type publisherDoc struct {
	Kind            string   `yaml:"kind"`
	Pattern         string   `yaml:"pattern"`
	Tool            string   `yaml:"tool"`
	Fingerprint     bool     `yaml:"fingerprint"`
	AllowEmpty      bool     `yaml:"allow_empty"`
	AllowFailures   bool     `yaml:"allow_failures"`
	MaxIssues       *int     `yaml:"max_issues"`
	MinLineCoverage *float64 `yaml:"min_line_coverage"`
}

type pipelineDoc struct {
	Stages    []*stageDoc   `yaml:"stages"`
	Promotion *promotionDoc `yaml:"promotion"`
}

type stageDoc struct {
	Name     string   `yaml:"name"`
	Job      string   `yaml:"job"`
	Parallel []string `yaml:"parallel"`
}

type promotionDoc struct {
	Job        string `yaml:"job"`
	From       string `yaml:"from"`
	Repository string `yaml:"repository"`
	Pattern    string `yaml:"pattern"`
}

// Loader is the YAML implementation of the config.Loader interface.
type Loader struct{}

var _ config.Loader = (*Loader)(nil)

// NewLoader creates a YAML loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses every .yaml and .yml file under paths. Unknown keys are
// rejected. Map entries are translated in name order.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := fsutil.FindFilesByExtension(paths, Extensions...)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered YAML files.", "count", len(files))

	model := config.NewModel()
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, err
		}

		var doc document
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to decode YAML file %s: %w", file, err)
		}

		if err := model.Merge(translate(doc, file)); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
	}

	logger.Debug("YAML loading complete.", "jobs", len(model.Jobs), "pipelines", len(model.Pipelines))
	return model, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func translate(doc document, file string) *config.Model {
	model := config.NewModel()
	for _, name := range sortedKeys(doc.Jobs) {
		j := doc.Jobs[name]
		if j == nil {
			j = &jobDoc{}
		}
		job := &config.Job{
			Name:        name,
			Description: j.Description,
			Command:     j.Command,
			Timeout:     j.Timeout,
			Env:         j.Env,
			SCM:         j.SCM,
			Source:      file,
		}
		if t := j.Trigger; t != nil {
			job.Trigger = &config.Trigger{Kind: t.Kind, Interval: t.Interval, Job: t.Job}
		}
		if r := j.Retention; r != nil {
			job.Retention = &config.Retention{Builds: r.Builds, Artifacts: r.Artifacts}
		}
		for _, p := range j.Publishers {
			job.Publishers = append(job.Publishers, &config.Publisher{
				Kind:            p.Kind,
				Pattern:         p.Pattern,
				Tool:            p.Tool,
				Fingerprint:     p.Fingerprint,
				AllowEmpty:      p.AllowEmpty,
				AllowFailures:   p.AllowFailures,
				MaxIssues:       p.MaxIssues,
				MinLineCoverage: p.MinLineCoverage,
			})
		}
		model.Jobs = append(model.Jobs, job)
	}

	for _, name := range sortedKeys(doc.Pipelines) {
		p := doc.Pipelines[name]
		if p == nil {
			p = &pipelineDoc{}
		}
		pl := &config.Pipeline{Name: name, Source: file}
		for _, s := range p.Stages {
			pl.Stages = append(pl.Stages, &config.Stage{Name: s.Name, Job: s.Job, Parallel: s.Parallel})
		}
		if pr := p.Promotion; pr != nil {
			pl.Promotion = &config.Promotion{Job: pr.Job, From: pr.From, Repository: pr.Repository, Pattern: pr.Pattern}
		}
		model.Pipelines = append(model.Pipelines, pl)
	}
	return model
}
