package pipeline

import (
	"errors"
	"strings"
)

var (
	// ErrEmptyPipeline is returned for a pipeline without stages.
	ErrEmptyPipeline = errors.New("pipeline has no stages")
	// ErrUnknownJob is returned when a stage references a job that is not registered.
	ErrUnknownJob = errors.New("unknown job")
	// ErrInvalidPipeline covers every other structural problem.
	ErrInvalidPipeline = errors.New("invalid pipeline")
)

// ValidationError lists every problem found while building one pipeline.
// Problems are kept in declaration order.
type ValidationError struct {
	Pipeline string
	Problems []error
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("pipeline ")
	b.WriteString(quote(e.Pipeline))
	b.WriteString(" is invalid:")
	for _, p := range e.Problems {
		b.WriteString("\n  - ")
		b.WriteString(p.Error())
	}
	return b.String()
}

// Unwrap exposes the individual problems to errors.Is and errors.As.
func (e *ValidationError) Unwrap() []error { return e.Problems }

func quote(s string) string {
	return `"` + s + `"`
}
