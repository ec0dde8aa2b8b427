package executor

import (
	"errors"
	"fmt"
)

// ErrJobFailed matches every JobExecutionError.
var ErrJobFailed = errors.New("job execution failed")

// Reason classifies a job failure.
type Reason string

const (
	// ReasonCommand is a non-zero exit or a runner failure.
	ReasonCommand Reason = "command"
	// ReasonTimeout means the job exceeded its timeout.
	ReasonTimeout Reason = "timeout"
	// ReasonCanceled means the run was canceled while the job was in flight.
	ReasonCanceled Reason = "canceled"
	// ReasonPublish is a failing publisher.
	ReasonPublish Reason = "publish"
	// ReasonStore is a failure to allocate or record the build.
	ReasonStore Reason = "store"
)

// JobExecutionError describes one failed job execution.
type JobExecutionError struct {
	Job         string
	BuildNumber int
	Reason      Reason
	Err         error
}

func (e *JobExecutionError) Error() string {
	return fmt.Sprintf("job %s #%d failed (%s): %v", e.Job, e.BuildNumber, e.Reason, e.Err)
}

// Unwrap exposes both ErrJobFailed and the underlying cause.
func (e *JobExecutionError) Unwrap() []error { return []error{ErrJobFailed, e.Err} }
