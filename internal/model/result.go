// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the records produced by a job execution.
package model

import (
	"strings"
	"time"
)

// Status is the outcome of a single job execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// RunResult is the write-once record of one job execution.
type RunResult struct {
	// Job is the namespaced job name.
	Job         string              `json:"job"`
	BuildNumber int                 `json:"build_number"`
	Status      Status              `json:"status"`
	Artifacts   []ArtifactReference `json:"artifacts,omitempty"`
	Reports     []Report            `json:"reports,omitempty"`
	Error       string              `json:"error,omitempty"`
	LogPath     string              `json:"log_path,omitempty"`
	StartedAt   time.Time           `json:"started_at"`
	FinishedAt  time.Time           `json:"finished_at"`
}

// Succeeded reports whether the execution succeeded.
func (r *RunResult) Succeeded() bool {
	return r != nil && r.Status == StatusSuccess
}

// Duration is the wall-clock time the execution took.
func (r *RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ArtifactReference is an opaque pointer to a build output.
type ArtifactReference struct {
	// ID is "<job>#<build>/<path>".
	ID       string `json:"id"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Location string `json:"location"`
	Size     int64  `json:"size"`
	Checksum string `json:"checksum,omitempty"`
}

// Job returns the job part of the reference ID.
func (a ArtifactReference) Job() string {
	job, _, _ := strings.Cut(a.ID, "#")
	return job
}

// Report is the summary of a report-type publisher.
type Report struct {
	Kind    PublisherKind  `json:"kind"`
	Tool    string         `json:"tool,omitempty"`
	Files   []string       `json:"files"`
	Summary map[string]int `json:"summary"`
	// Coverage is the line coverage percentage of coverage reports.
	Coverage float64 `json:"coverage,omitempty"`
}
