// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the publisher (post-action) variants of a job.
//
// # How Publishers Work
//
// Publishers run in declaration order after the job's command succeeded. Each
// one matches Pattern (a glob relative to the job workspace) and either
// archives the matching files as artifacts or reads them as a report. A
// publisher whose threshold is violated fails the job.
package model

import (
	"fmt"
	"path/filepath"

	"github.com/specialistvlad/gridci/internal/config"
)

// PublisherKind names a publisher variant.
type PublisherKind string

const (
	PublishArchiveArtifact    PublisherKind = "archive_artifact"
	PublishArchiveTestResults PublisherKind = "archive_test_results"
	PublishStaticAnalysis     PublisherKind = "static_analysis"
	PublishCodeCoverage       PublisherKind = "code_coverage"
)

// Publisher is implemented by every post-action variant.
type Publisher interface {
	Kind() PublisherKind
	// Glob is the workspace-relative file pattern the publisher reads.
	Glob() string
	isPublisher()
}

// ArchiveArtifact keeps matching files as the build's artifacts.
type ArchiveArtifact struct {
	Pattern     string
	Fingerprint bool
	AllowEmpty  bool
}

// ArchiveTestResults reads JUnit XML reports.
type ArchiveTestResults struct {
	Pattern       string
	AllowEmpty    bool
	AllowFailures bool
}

// AnalysisTool is a static analysis report format.
type AnalysisTool string

const (
	ToolCheckstyle AnalysisTool = "checkstyle"
	ToolPMD        AnalysisTool = "pmd"
	ToolFindBugs   AnalysisTool = "findbugs"
	ToolSpotBugs   AnalysisTool = "spotbugs"
)

// StaticAnalysisReport counts the issues in a static analysis report.
type StaticAnalysisReport struct {
	Tool    AnalysisTool
	Pattern string
	// MaxIssues fails the job when more issues are reported. Nil disables it.
	MaxIssues *int
}

// CodeCoverageReport reads JaCoCo XML coverage reports.
type CodeCoverageReport struct {
	Pattern string
	// MinLineCoverage is a percentage. Nil disables the check.
	MinLineCoverage *float64
}

func (ArchiveArtifact) Kind() PublisherKind      { return PublishArchiveArtifact }
func (ArchiveTestResults) Kind() PublisherKind   { return PublishArchiveTestResults }
func (StaticAnalysisReport) Kind() PublisherKind { return PublishStaticAnalysis }
func (CodeCoverageReport) Kind() PublisherKind   { return PublishCodeCoverage }

func (p ArchiveArtifact) Glob() string      { return p.Pattern }
func (p ArchiveTestResults) Glob() string   { return p.Pattern }
func (p StaticAnalysisReport) Glob() string { return p.Pattern }
func (p CodeCoverageReport) Glob() string   { return p.Pattern }

func (ArchiveArtifact) isPublisher()      {}
func (ArchiveTestResults) isPublisher()   {}
func (StaticAnalysisReport) isPublisher() {}
func (CodeCoverageReport) isPublisher()   {}

// NewPublisher validates a raw publisher block and returns its typed variant.
func NewPublisher(cfg *config.Publisher) (Publisher, error) {
	if cfg.Pattern == "" {
		return nil, fmt.Errorf("%s: pattern is required", cfg.Kind)
	}
	if _, err := filepath.Match(cfg.Pattern, ""); err != nil {
		return nil, fmt.Errorf("%s: invalid pattern %q: %w", cfg.Kind, cfg.Pattern, err)
	}
	if filepath.IsAbs(cfg.Pattern) {
		return nil, fmt.Errorf("%s: pattern %q must be relative to the workspace", cfg.Kind, cfg.Pattern)
	}

	switch PublisherKind(cfg.Kind) {
	case PublishArchiveArtifact:
		return ArchiveArtifact{Pattern: cfg.Pattern, Fingerprint: cfg.Fingerprint, AllowEmpty: cfg.AllowEmpty}, nil
	case PublishArchiveTestResults:
		return ArchiveTestResults{Pattern: cfg.Pattern, AllowEmpty: cfg.AllowEmpty, AllowFailures: cfg.AllowFailures}, nil
	case PublishStaticAnalysis:
		tool := AnalysisTool(cfg.Tool)
		switch tool {
		case ToolCheckstyle, ToolPMD, ToolFindBugs, ToolSpotBugs:
		default:
			return nil, fmt.Errorf("static_analysis: unknown tool %q", cfg.Tool)
		}
		if cfg.MaxIssues != nil && *cfg.MaxIssues < 0 {
			return nil, fmt.Errorf("static_analysis: max_issues cannot be negative")
		}
		return StaticAnalysisReport{Tool: tool, Pattern: cfg.Pattern, MaxIssues: cfg.MaxIssues}, nil
	case PublishCodeCoverage:
		if c := cfg.MinLineCoverage; c != nil && (*c < 0 || *c > 100) {
			return nil, fmt.Errorf("code_coverage: min_line_coverage must be between 0 and 100")
		}
		return CodeCoverageReport{Pattern: cfg.Pattern, MinLineCoverage: cfg.MinLineCoverage}, nil
	default:
		return nil, fmt.Errorf("unknown publisher kind %q", cfg.Kind)
	}
}
