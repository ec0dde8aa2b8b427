package artifactstore

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/specialistvlad/gridci/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func archived(t *testing.T, content string) model.ArtifactReference {
	t.Helper()
	src := filepath.Join(t.TempDir(), "app.war")
	require.NoError(t, os.WriteFile(src, []byte(content), 0o644))
	return model.ArtifactReference{
		ID:       "ns-build#42/target/app.war",
		Name:     "app.war",
		Path:     "target/app.war",
		Location: src,
		Size:     int64(len(content)),
	}
}

func TestRepositoryPath(t *testing.T) {
	testCases := []struct {
		name    string
		id      string
		repo    string
		want    string
		wantErr bool
	}{
		{name: "nested path", id: "ns-build#42/target/app.war", repo: "libs-release", want: "libs-release/ns-build/42/target/app.war"},
		{name: "flat", id: "build#1/app.war", repo: "libs", want: "libs/build/1/app.war"},
		{name: "missing build", id: "build/app.war", repo: "libs", wantErr: true},
		{name: "missing file", id: "build#1", repo: "libs", wantErr: true},
		{name: "empty repository", id: "build#1/app.war", repo: "", wantErr: true},
		{name: "escapes", id: "build#1/../../../../etc/passwd", repo: "libs", wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := RepositoryPath(tc.repo, model.ArtifactReference{ID: tc.id})
			if tc.wantErr {
				require.True(t, errors.Is(err, ErrInvalidReference), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFileSystem_Publish(t *testing.T) {
	root := t.TempDir()
	fs := &FileSystem{Root: root}
	ref := archived(t, "war-bytes")

	published, err := fs.Publish(context.Background(), ref, "libs-release")
	require.NoError(t, err)

	want := filepath.Join(root, "libs-release", "ns-build", "42", "target", "app.war")
	assert.Equal(t, want, published.Location)
	assert.Equal(t, ref.ID, published.ID)
	assert.EqualValues(t, 9, published.Size)

	data, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, "war-bytes", string(data))
}

func TestFileSystem_MissingSource(t *testing.T) {
	fs := &FileSystem{Root: t.TempDir()}
	ref := archived(t, "x")
	ref.Location = filepath.Join(t.TempDir(), "gone.war")

	_, err := fs.Publish(context.Background(), ref, "libs")
	require.ErrorContains(t, err, "failed to open artifact")
}

func TestHTTP_Publish(t *testing.T) {
	var (
		mu      sync.Mutex
		gotPath string
		gotBody string
		gotUser string
		gotType string
		gotMeth string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		body, _ := io.ReadAll(r.Body)
		gotPath, gotBody, gotMeth = r.URL.Path, string(body), r.Method
		gotUser, _, _ = r.BasicAuth()
		gotType = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	h := &HTTP{BaseURL: srv.URL + "/artifactory/", Client: srv.Client(), Username: "deployer", Password: "secret"}
	published, err := h.Publish(context.Background(), archived(t, "war-bytes"), "libs-release")
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, gotMeth)
	assert.Equal(t, "/artifactory/libs-release/ns-build/42/target/app.war", gotPath)
	assert.Equal(t, "war-bytes", gotBody)
	assert.Equal(t, "deployer", gotUser)
	assert.NotEmpty(t, gotType)
	assert.Equal(t, srv.URL+"/artifactory/libs-release/ns-build/42/target/app.war", published.Location)
}

func TestHTTP_RejectedUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	h := &HTTP{BaseURL: srv.URL, Client: srv.Client()}
	_, err := h.Publish(context.Background(), archived(t, "x"), "libs")
	require.ErrorContains(t, err, "403")
}

func TestSFTP_AuthMethods(t *testing.T) {
	_, err := (&SFTP{Addr: "repo:22"}).authMethods()
	require.ErrorContains(t, err, "no authentication method")

	methods, err := (&SFTP{Addr: "repo:22", Password: "pw"}).authMethods()
	require.NoError(t, err)
	assert.Len(t, methods, 1)

	_, err = (&SFTP{Addr: "repo:22", KeyFile: filepath.Join(t.TempDir(), "missing")}).authMethods()
	require.ErrorContains(t, err, "read ssh private key")

	cfg, err := (&SFTP{Addr: "repo:22", User: "deploy", Password: "pw"}).clientConfig()
	require.NoError(t, err)
	assert.Equal(t, "deploy", cfg.User)
	assert.NotNil(t, cfg.HostKeyCallback)
}
