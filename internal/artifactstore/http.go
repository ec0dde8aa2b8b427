package artifactstore

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/specialistvlad/gridci/internal/model"
)

// HTTP uploads artifacts with PUT <BaseURL>/<repository>/<job>/<build>/<path>,
// the layout used by Artifactory and Nexus raw repositories.
type HTTP struct {
	BaseURL  string
	Client   *http.Client
	Username string
	Password string
}

// Publish uploads one artifact. Any non-2xx response is an error.
func (h *HTTP) Publish(ctx context.Context, ref model.ArtifactReference, repository string) (model.ArtifactReference, error) {
	logger := ctxlog.FromContext(ctx).With("artifact", ref.ID)

	rel, err := RepositoryPath(repository, ref)
	if err != nil {
		return model.ArtifactReference{}, err
	}
	url := strings.TrimRight(h.BaseURL, "/") + "/" + rel

	file, err := os.Open(ref.Location)
	if err != nil {
		return model.ArtifactReference{}, fmt.Errorf("failed to open artifact '%s': %w", ref.Location, err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return model.ArtifactReference{}, fmt.Errorf("failed to get file stats for '%s': %w", ref.Location, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, file)
	if err != nil {
		return model.ArtifactReference{}, fmt.Errorf("failed to create upload request: %w", err)
	}
	contentType := mime.TypeByExtension(filepath.Ext(ref.Location))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = stat.Size()
	if ref.Checksum != "" {
		req.Header.Set("X-Checksum-Sha256", ref.Checksum)
	}
	if h.Username != "" {
		req.SetBasicAuth(h.Username, h.Password)
	}

	logger.Debug("Uploading artifact.", "url", url, "size", stat.Size(), "contentType", contentType)

	client := h.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return model.ArtifactReference{}, fmt.Errorf("failed to execute upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return model.ArtifactReference{}, fmt.Errorf("upload of %s failed with status: %s", ref.ID, resp.Status)
	}

	published := ref
	published.Location = url
	published.Size = stat.Size()
	return published, nil
}
