package scm

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrUnknownCredential is returned when a credential identifier cannot be
// resolved.
var ErrUnknownCredential = errors.New("unknown credential")

// Credential is a username and password pair.
type Credential struct {
	Username string
	Password string
}

// AuthHeader is the HTTP basic authorization header value.
func (c Credential) AuthHeader() string {
	token := base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.Password))
	return "Basic " + token
}

// CredentialSource resolves a credential identifier.
type CredentialSource interface {
	Credential(id string) (Credential, error)
}

// EnvCredentials resolves identifiers from GRIDCI_CREDENTIAL_<ID>_USERNAME and
// GRIDCI_CREDENTIAL_<ID>_PASSWORD. The identifier is upper-cased and every
// character outside [A-Z0-9] becomes an underscore.
type EnvCredentials struct {
	// Lookup defaults to os.LookupEnv.
	Lookup func(string) (string, bool)
}

// EnvPrefix returns the variable prefix used for an identifier.
func EnvPrefix(id string) string {
	var b strings.Builder
	b.WriteString("GRIDCI_CREDENTIAL_")
	for _, r := range strings.ToUpper(id) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Credential implements CredentialSource.
func (e EnvCredentials) Credential(id string) (Credential, error) {
	lookup := e.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	prefix := EnvPrefix(id)
	user, okUser := lookup(prefix + "_USERNAME")
	pass, okPass := lookup(prefix + "_PASSWORD")
	if !okUser && !okPass {
		return Credential{}, fmt.Errorf("%w %q: set %s_USERNAME and %s_PASSWORD", ErrUnknownCredential, id, prefix, prefix)
	}
	return Credential{Username: user, Password: pass}, nil
}
