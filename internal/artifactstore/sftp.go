package artifactstore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"github.com/specialistvlad/gridci/internal/ctxlog"
	"github.com/specialistvlad/gridci/internal/model"
	"golang.org/x/crypto/ssh"
)

// SFTP uploads artifacts to <Root>/<repository>/<job>/<build>/<path> on an
// SSH server. One connection is opened per Publish call.
type SFTP struct {
	Addr     string
	User     string
	Password string
	// KeyFile is a PEM private key; tried before Password.
	KeyFile string
	Root    string
	// HostKey verifies the server. Nil accepts any host key.
	HostKey ssh.HostKeyCallback
	Timeout time.Duration
}

func (s *SFTP) authMethods() ([]ssh.AuthMethod, error) {
	methods := make([]ssh.AuthMethod, 0, 2)
	if s.KeyFile != "" {
		data, err := os.ReadFile(s.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read ssh private key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("parse ssh private key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}
	if password := strings.TrimSpace(s.Password); password != "" {
		methods = append(methods, ssh.Password(password))
	}
	if len(methods) == 0 {
		return nil, fmt.Errorf("sftp: no authentication method configured for %s", s.Addr)
	}
	return methods, nil
}

func (s *SFTP) clientConfig() (*ssh.ClientConfig, error) {
	auth, err := s.authMethods()
	if err != nil {
		return nil, err
	}
	hostKey := s.HostKey
	if hostKey == nil {
		hostKey = ssh.InsecureIgnoreHostKey()
	}
	timeout := s.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ssh.ClientConfig{
		User:            s.User,
		Auth:            auth,
		HostKeyCallback: hostKey,
		Timeout:         timeout,
	}, nil
}

// Publish uploads one artifact.
func (s *SFTP) Publish(ctx context.Context, ref model.ArtifactReference, repository string) (model.ArtifactReference, error) {
	rel, err := RepositoryPath(repository, ref)
	if err != nil {
		return model.ArtifactReference{}, err
	}
	remote := path.Join(s.Root, rel)

	config, err := s.clientConfig()
	if err != nil {
		return model.ArtifactReference{}, err
	}
	client, err := ssh.Dial("tcp", s.Addr, config)
	if err != nil {
		return model.ArtifactReference{}, fmt.Errorf("ssh dial failed: %w", err)
	}
	defer client.Close()

	sftpClient, err := sftp.NewClient(client)
	if err != nil {
		return model.ArtifactReference{}, fmt.Errorf("start sftp session: %w", err)
	}
	defer sftpClient.Close()

	if err := sftpClient.MkdirAll(path.Dir(remote)); err != nil {
		return model.ArtifactReference{}, fmt.Errorf("create remote directory: %w", err)
	}

	in, err := os.Open(ref.Location)
	if err != nil {
		return model.ArtifactReference{}, fmt.Errorf("failed to open artifact '%s': %w", ref.Location, err)
	}
	defer in.Close()

	out, err := sftpClient.Create(remote)
	if err != nil {
		return model.ArtifactReference{}, fmt.Errorf("create %s: %w", remote, err)
	}
	n, err := io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return model.ArtifactReference{}, fmt.Errorf("upload %s: %w", remote, err)
	}

	ctxlog.FromContext(ctx).Debug("Published artifact over sftp.", "artifact", ref.ID, "remote", remote)
	published := ref
	published.Location = fmt.Sprintf("sftp://%s/%s", s.Addr, strings.TrimPrefix(remote, "/"))
	published.Size = n
	return published, nil
}
