// Package publisher applies a job's post-actions to its workspace once the
// command succeeded: it archives artifacts, reads JUnit, static analysis and
// JaCoCo reports, and enforces the thresholds configured on each publisher.
//
// Publishers run in declaration order. The first failing publisher stops the
// rest and fails the job; artifacts archived before the failure are still
// returned so they can be recorded.
package publisher
