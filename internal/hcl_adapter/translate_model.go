// This file translates the HCL schema structs into the format-agnostic
// configuration model defined in the config package.

package hcl_adapter

import (
	"context"
	"fmt"

	"github.com/specialistvlad/gridci/internal/config"
	"github.com/specialistvlad/gridci/internal/ctxlog"
)

func translateJob(ctx context.Context, b *jobBlock) (*config.Job, error) {
	logger := ctxlog.FromContext(ctx).With("job", b.Name)
	logger.Debug("Translating HCL job to internal config model.", "publishers", len(b.Publishers))

	job := &config.Job{
		Name:        b.Name,
		Description: b.Description,
		Command:     b.Command,
		Timeout:     b.Timeout,
		Env:         b.Env,
		Source:      b.DeclRange.String(),
	}
	if b.SCM != nil {
		job.SCM = &config.SCM{URL: b.SCM.URL, Branch: b.SCM.Branch, Credential: b.SCM.Credential}
	}
	switch len(b.Triggers) {
	case 0:
	case 1:
		t := b.Triggers[0]
		job.Trigger = &config.Trigger{Kind: t.Kind, Interval: t.Interval, Job: t.Job}
	default:
		return nil, fmt.Errorf("%s: job %q declares %d triggers, at most one is allowed", b.Triggers[1].DeclRange, b.Name, len(b.Triggers))
	}
	if b.Retention != nil {
		job.Retention = &config.Retention{Builds: b.Retention.Builds, Artifacts: b.Retention.Artifacts}
	}
	for _, p := range b.Publishers {
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
	return job, nil
}

func translatePipeline(b *pipelineBlock) *config.Pipeline {
	p := &config.Pipeline{Name: b.Name, Source: b.DeclRange.String()}
	for _, s := range b.Stages {
		p.Stages = append(p.Stages, &config.Stage{Name: s.Name, Job: s.Job, Parallel: s.Parallel})
	}
	if b.Promotion != nil {
		p.Promotion = &config.Promotion{
			Job:        b.Promotion.Job,
			From:       b.Promotion.From,
			Repository: b.Promotion.Repository,
			Pattern:    b.Promotion.Pattern,
		}
	}
	return p
}
