// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package model holds the typed, validated domain objects of gridci: jobs,
// their post-actions (publishers) and triggers, and the results a job run
// produces.
//
// # Core Concepts
//
//   - Job: a named command plus the policies around it (timeout, retention,
//     SCM checkout, trigger, publishers). Jobs are built from the raw
//     config.Job with FromConfig and are never modified afterwards.
//
//   - Publisher: a post-action applied to the job's workspace once its command
//     succeeded. Every publisher kind is its own Go type, so there is no
//     free-form configuration left once a Job exists.
//
//   - Trigger: what starts a job. None, a polling interval, or completion of
//     an upstream job.
//
//   - RunResult: the write-once record of a single job execution, with its
//     build number, status and archived ArtifactReferences.
package model
