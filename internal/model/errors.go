// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
package model

import (
	"errors"
	"fmt"
)

// ErrInvalidJob is returned when a job definition cannot be turned into a Job.
var ErrInvalidJob = errors.New("invalid job definition")

// JobError describes every problem found in a single job definition.
type JobError struct {
	Job      string
	Problems []string
}

func (e *JobError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("job %q: %s", e.Job, e.Problems[0])
	}
	msg := fmt.Sprintf("job %q has %d problems:", e.Job, len(e.Problems))
	for _, p := range e.Problems {
		msg += "\n  - " + p
	}
	return msg
}

func (e *JobError) Unwrap() error { return ErrInvalidJob }
