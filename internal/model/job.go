// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the Job structure and its construction from the raw
// definition model.
package model

import (
	"fmt"
	"maps"
	"regexp"
	"time"

	"github.com/specialistvlad/gridci/internal/config"
)

// jobNamePattern restricts job names to characters that are safe in
// workspace paths and store keys.
var jobNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidName reports whether name is usable as a job name or namespace.
func ValidName(name string) bool {
	return jobNamePattern.MatchString(name)
}

// DefaultBranch is checked out when an SCM block does not name a branch.
const DefaultBranch = "main"

// Job is a validated, immutable job definition.
type Job struct {
	Name        string
	Description string
	// Command is run through `sh -c`. An empty command makes a publish-only job.
	Command string
	Env     map[string]string
	// Timeout bounds a single execution. Zero means the executor default.
	Timeout    time.Duration
	SCM        *SCM
	Trigger    Trigger
	Retention  Retention
	Publishers []Publisher
}

// SCM describes the repository a job checks out before its command runs.
type SCM struct {
	URL        string
	Branch     string
	Credential string
}

// Retention limits the number of kept builds and of builds that keep their
// archived artifacts. Zero means unlimited.
type Retention struct {
	Builds    int
	Artifacts int
}

// FromConfig builds a Job from its raw definition, collecting every problem
// instead of stopping at the first one.
func FromConfig(cfg *config.Job) (*Job, error) {
	var problems []string
	fail := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if !ValidName(cfg.Name) {
		fail("name must match %s", jobNamePattern.String())
	}

	j := &Job{
		Name:        cfg.Name,
		Description: cfg.Description,
		Command:     cfg.Command,
		Env:         maps.Clone(cfg.Env),
		Trigger:     NoTrigger{},
	}

	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		switch {
		case err != nil:
			fail("invalid timeout %q: %v", cfg.Timeout, err)
		case d <= 0:
			fail("timeout must be positive, got %s", cfg.Timeout)
		default:
			j.Timeout = d
		}
	}

	if cfg.SCM != nil {
		if cfg.SCM.URL == "" {
			fail("scm block requires a url")
		}
		j.SCM = &SCM{URL: cfg.SCM.URL, Branch: cfg.SCM.Branch, Credential: cfg.SCM.Credential}
		if j.SCM.Branch == "" {
			j.SCM.Branch = DefaultBranch
		}
	}

	if cfg.Retention != nil {
		if cfg.Retention.Builds < 0 || cfg.Retention.Artifacts < 0 {
			fail("retention counts cannot be negative")
		}
		j.Retention = Retention{Builds: cfg.Retention.Builds, Artifacts: cfg.Retention.Artifacts}
	}

	if cfg.Trigger != nil {
		t, err := NewTrigger(cfg.Trigger)
		if err != nil {
			fail("%v", err)
		} else {
			j.Trigger = t
		}
	}

	for i, p := range cfg.Publishers {
		pub, err := NewPublisher(p)
		if err != nil {
			fail("publisher #%d: %v", i+1, err)
			continue
		}
		j.Publishers = append(j.Publishers, pub)
	}

	if len(problems) > 0 {
		return nil, &JobError{Job: cfg.Name, Problems: problems}
	}
	return j, nil
}
