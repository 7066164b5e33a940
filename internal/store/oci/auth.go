package oci

import (
	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
)

// Authenticator provides authentication for OCI registry operations.
type Authenticator interface {
	// Authenticate returns credentials for the given registry. Empty
	// credentials fall back to the Docker keychain.
	Authenticate(registry string) (username, password string, err error)
}

// KeychainAuthenticator defers to the system keychain (like Docker).
type KeychainAuthenticator struct{}

func (KeychainAuthenticator) Authenticate(string) (string, string, error) {
	return "", "", nil
}

// StaticAuthenticator returns fixed credentials for every registry.
type StaticAuthenticator struct {
	Username string
	Password string
}

func (a StaticAuthenticator) Authenticate(string) (string, string, error) {
	return a.Username, a.Password, nil
}

func authenticate(a Authenticator, repo name.Repository) authn.Authenticator {
	if a != nil {
		username, password, err := a.Authenticate(repo.RegistryStr())
		if err == nil && username != "" {
			return &authn.Basic{Username: username, Password: password}
		}
	}
	auth, err := authn.DefaultKeychain.Resolve(repo)
	if err != nil {
		return authn.Anonymous
	}
	return auth
}
