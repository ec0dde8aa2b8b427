package hcl_adapter

import "github.com/hashicorp/hcl/v2"

// fileRoot decodes all top-level blocks of one file.
type fileRoot struct {
	Jobs      []*jobBlock      `hcl:"job,block"`
	Pipelines []*pipelineBlock `hcl:"pipeline,block"`
}

type jobBlock struct {
	Name        string            `hcl:"name,label"`
	Description string            `hcl:"description,optional"`
	Command     string            `hcl:"command,optional"`
	Timeout     string            `hcl:"timeout,optional"`
	Env         map[string]string `hcl:"env,optional"`
	SCM         *scmBlock         `hcl:"scm,block"`
	Triggers    []*triggerBlock   `hcl:"trigger,block"`
	Retention   *retentionBlock   `hcl:"retention,block"`
	Publishers  []*publisherBlock `hcl:"publisher,block"`
	DeclRange   hcl.Range         `hcl:",def_range"`
}

type scmBlock struct {
	URL        string `hcl:"url"`
	Branch     string `hcl:"branch,optional"`
	Credential string `hcl:"credential,optional"`
}

type triggerBlock struct {
	Kind      string    `hcl:"kind,label"`
	Interval  string    `hcl:"interval,optional"`
	Job       string    `hcl:"job,optional"`
	DeclRange hcl.Range `hcl:",def_range"`
}

type retentionBlock struct {
	Builds    int `hcl:"builds,optional"`
	Artifacts int `hcl:"artifacts,optional"`
}

type publisherBlock struct {
	Kind            string   `hcl:"kind,label"`
	Pattern         string   `hcl:"pattern"`
	Tool            string   `hcl:"tool,optional"`
	Fingerprint     bool     `hcl:"fingerprint,optional"`
	AllowEmpty      bool     `hcl:"allow_empty,optional"`
	AllowFailures   bool     `hcl:"allow_failures,optional"`
	MaxIssues       *int     `hcl:"max_issues,optional"`
	MinLineCoverage *float64 `hcl:"min_line_coverage,optional"`
}

type pipelineBlock struct {
	Name      string          `hcl:"name,label"`
	Stages    []*stageBlock   `hcl:"stage,block"`
	Promotion *promotionBlock `hcl:"promotion,block"`
	DeclRange hcl.Range       `hcl:",def_range"`
}

type stageBlock struct {
	Name     string   `hcl:"name,label"`
	Job      string   `hcl:"job,optional"`
	Parallel []string `hcl:"parallel,optional"`
}

type promotionBlock struct {
	Job        string `hcl:"job"`
	From       string `hcl:"from"`
	Repository string `hcl:"repository"`
	Pattern    string `hcl:"pattern,optional"`
}
