package artifactstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/specialistvlad/gridci/internal/model"
)

// FileSystem publishes into a directory tree rooted at Root.
type FileSystem struct {
	Root string
}

// Publish copies the artifact to <Root>/<repository>/<job>/<build>/<path>.
func (f *FileSystem) Publish(ctx context.Context, ref model.ArtifactReference, repository string) (model.ArtifactReference, error) {
	rel, err := RepositoryPath(repository, ref)
	if err != nil {
		return model.ArtifactReference{}, err
	}
	dst := filepath.Join(f.Root, filepath.FromSlash(rel))

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return model.ArtifactReference{}, fmt.Errorf("create repository directory: %w", err)
	}
	n, err := copyFile(ref.Location, dst)
	if err != nil {
		return model.ArtifactReference{}, err
	}

	ctxlog.FromContext(ctx).Debug("Published artifact to file system repository.", "artifact", ref.ID, "destination", dst)
	published := ref
	published.Location = dst
	published.Size = n
	return published, nil
}

func copyFile(src, dst string) (int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, fmt.Errorf("failed to open artifact '%s': %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return 0, fmt.Errorf("failed to create '%s': %w", dst, err)
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("failed to copy '%s': %w", src, err)
	}
	return n, nil
}
