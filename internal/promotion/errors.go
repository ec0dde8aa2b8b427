package promotion

import (
	"errors"
	"fmt"
)

var (
	// ErrUnresolvedArtifact is returned when a job and build number do not
	// resolve to any artifact.
	ErrUnresolvedArtifact = errors.New("unresolved artifact")
	// ErrPromotionFailed is returned when publishing to the repository fails.
	ErrPromotionFailed = errors.New("promotion failed")
	// ErrNoArtifactStore is returned when the gate has no publisher.
	ErrNoArtifactStore = errors.New("no artifact store configured")
)

// UnresolvedArtifactError names the job and build that could not be
// resolved.
type UnresolvedArtifactError struct {
	Job         string
	BuildNumber int
	Reason      string
}

func (e *UnresolvedArtifactError) Error() string {
	return fmt.Sprintf("%v: %s#%d: %s", ErrUnresolvedArtifact, e.Job, e.BuildNumber, e.Reason)
}

func (e *UnresolvedArtifactError) Unwrap() error { return ErrUnresolvedArtifact }

// PromotionFailure is returned when an artifact could not be published.
// Artifacts published before the failure are listed in Published.
type PromotionFailure struct {
	Repository string
	Artifact   string
	Published  []string
	Err        error
}

func (e *PromotionFailure) Error() string {
	if e.Artifact == "" {
		return fmt.Sprintf("%v: repository %s: %v", ErrPromotionFailed, e.Repository, e.Err)
	}
	return fmt.Sprintf("%v: publishing %s to %s: %v", ErrPromotionFailed, e.Artifact, e.Repository, e.Err)
}

func (e *PromotionFailure) Unwrap() []error { return []error{ErrPromotionFailed, e.Err} }
