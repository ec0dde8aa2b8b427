// Package executor runs a validated pipeline.
//
// # Execution Model
//
// Stages run strictly in order. A single-job stage runs synchronously and a
// failure stops the run: later stages never start. A parallel group launches
// every job at once (bounded by MaxParallel) and waits for all of them before
// deciding the outcome, so a failing sibling never cancels the others. The
// group fails if any member failed.
//
// Each job execution allocates a build number from the run store, runs the
// command through a JobRunner under the job's timeout, applies its
// publishers, records the write-once RunResult, and applies the job's
// retention policy.
//
// When every stage succeeded and the pipeline has a promotion, the executor
// resolves the promoted build's artifacts, runs the promotion job, and
// publishes the artifacts. A failed promotion is recorded on the Run but
// never changes its state.
package executor
