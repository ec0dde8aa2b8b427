package artifactstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/specialistvlad/gridci/internal/model"
)

// ErrInvalidReference is returned for a reference whose ID cannot be mapped
// to a repository path.
var ErrInvalidReference = errors.New("invalid artifact reference")

// Publisher copies one archived artifact into a repository and returns the
// reference of the published copy. ref.Location must be a readable local
// file.
type Publisher interface {
	Publish(ctx context.Context, ref model.ArtifactReference, repository string) (model.ArtifactReference, error)
}

// RepositoryPath maps an artifact ID "<job>#<build>/<path>" to the path
// "<repository>/<job>/<build>/<path>" used by every backend.
func RepositoryPath(repository string, ref model.ArtifactReference) (string, error) {
	job, rest, ok := strings.Cut(ref.ID, "#")
	if !ok || job == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, ref.ID)
	}
	build, file, ok := strings.Cut(rest, "/")
	if !ok || build == "" || file == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidReference, ref.ID)
	}
	if repository == "" {
		return "", fmt.Errorf("%w: empty repository", ErrInvalidReference)
	}
	clean := path.Clean(path.Join(repository, job, build, file))
	if strings.HasPrefix(clean, "..") || path.IsAbs(clean) {
		return "", fmt.Errorf("%w: %q escapes the repository", ErrInvalidReference, ref.ID)
	}
	return clean, nil
}
