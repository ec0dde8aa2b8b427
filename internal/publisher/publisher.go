package publisher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/specialistvlad/gridci/internal/model"
)

var (
	// ErrNoMatch is returned when a pattern matches nothing and empty results
	// are not allowed.
	ErrNoMatch = errors.New("pattern matched no files")
	// ErrTestFailures is returned when JUnit reports contain failing tests.
	ErrTestFailures = errors.New("test failures reported")
	// ErrThreshold is returned when a report violates its configured limit.
	ErrThreshold = errors.New("report threshold violated")
	// ErrMalformedReport is returned for XML that cannot be parsed.
	ErrMalformedReport = errors.New("malformed report")
)

// Error identifies the publisher that failed.
type Error struct {
	Kind    model.PublisherKind
	Pattern string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("publisher %s (%s): %v", e.Kind, e.Pattern, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Target is the job execution a set of publishers is applied to.
type Target struct {
	// Job is the namespaced full name.
	Job         string
	BuildNumber int
	Workspace   string
	Publishers  []model.Publisher
}

// Outcome is what the publishers produced.
type Outcome struct {
	Artifacts []model.ArtifactReference
	Reports   []model.Report
}

// Archiver applies publishers and keeps archived files under
// <ArchiveRoot>/<job>/<build>/.
type Archiver struct {
	ArchiveRoot string
}

// Dir returns the archive directory of one build.
func (a *Archiver) Dir(job string, build int) string {
	return filepath.Join(a.ArchiveRoot, job, fmt.Sprint(build))
}

// Publish runs every publisher of the target in order. The returned outcome
// is never nil and holds whatever was produced before a failure.
func (a *Archiver) Publish(ctx context.Context, t Target) (*Outcome, error) {
	logger := ctxlog.FromContext(ctx).With("job", t.Job, "build", t.BuildNumber)
	out := &Outcome{}

	for _, p := range t.Publishers {
		files, err := Match(t.Workspace, p.Glob())
		if err != nil {
			return out, &Error{Kind: p.Kind(), Pattern: p.Glob(), Err: err}
		}
		logger.Debug("Publisher matched files.", "kind", p.Kind(), "pattern", p.Glob(), "count", len(files))

		switch p := p.(type) {
		case model.ArchiveArtifact:
			err = a.archive(t, p, files, out)
		case model.ArchiveTestResults:
			err = testResults(t, p, files, out)
		case model.StaticAnalysisReport:
			err = analysis(t, p, files, out)
		case model.CodeCoverageReport:
			err = coverage(t, p, files, out)
		default:
			err = fmt.Errorf("unsupported publisher %T", p)
		}
		if err != nil {
			logger.Warn("Publisher failed.", "kind", p.Kind(), "error", err)
			return out, &Error{Kind: p.Kind(), Pattern: p.Glob(), Err: err}
		}
	}
	return out, nil
}

func (a *Archiver) archive(t Target, p model.ArchiveArtifact, files []string, out *Outcome) error {
	if len(files) == 0 {
		if p.AllowEmpty {
			return nil
		}
		return ErrNoMatch
	}

	dir := a.Dir(t.Job, t.BuildNumber)
	for _, rel := range files {
		src := filepath.Join(t.Workspace, filepath.FromSlash(rel))
		dst := filepath.Join(dir, filepath.FromSlash(rel))
		size, sum, err := copyAndHash(src, dst, p.Fingerprint)
		if err != nil {
			return err
		}
		out.Artifacts = append(out.Artifacts, model.ArtifactReference{
			ID:       fmt.Sprintf("%s#%d/%s", t.Job, t.BuildNumber, rel),
			Name:     filepath.Base(dst),
			Path:     rel,
			Location: dst,
			Size:     size,
			Checksum: sum,
		})
	}
	return nil
}

func copyAndHash(src, dst string, fingerprint bool) (int64, string, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, "", err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, "", err
	}
	out, err := os.Create(dst)
	if err != nil {
		return 0, "", err
	}

	var w io.Writer = out
	h := sha256.New()
	if fingerprint {
		w = io.MultiWriter(out, h)
	}
	n, err := io.Copy(w, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, "", fmt.Errorf("archive %s: %w", src, err)
	}

	if !fingerprint {
		return n, "", nil
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// Discard removes archived files that are no longer referenced by any record.
// Missing files are ignored.
func (a *Archiver) Discard(ctx context.Context, refs []model.ArtifactReference) error {
	var errs []error
	for _, ref := range refs {
		if ref.Location == "" {
			continue
		}
		if err := os.Remove(ref.Location); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if len(refs) > 0 {
		ctxlog.FromContext(ctx).Debug("Discarded archived artifacts.", "count", len(refs))
	}
	return errors.Join(errs...)
}
