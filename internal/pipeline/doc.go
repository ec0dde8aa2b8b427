// Package pipeline describes the structure of a pipeline run: an ordered
// sequence of stages, where each stage is a single job or a parallel group
// of jobs, optionally followed by a promotion stage.
//
// Definitions are composed with Single, Parallel and Sequential (or
// translated from the config model) and validated against a registry with
// Build. The resulting Pipeline is immutable.
package pipeline
