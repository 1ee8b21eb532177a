package auth

import (
	"context"
	"fmt"
	"os"

	"github.com/jun/drivemirror/internal/secret"
)

// Credentials supplies the service account credentials document.
type Credentials interface {
	// Load returns the raw credentials JSON.
	Load(ctx context.Context) ([]byte, error)

	// String describes the source without revealing its content.
	String() string
}

// FileCredentials reads the credentials document from a file path.
type FileCredentials string

// Load implements Credentials.
func (p FileCredentials) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(string(p))
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file %q: %w", string(p), err)
	}
	return data, nil
}

func (p FileCredentials) String() string {
	return "file:" + string(p)
}

// SecretCredentials resolves the credentials document from a secret store.
type SecretCredentials struct {
	Resolver secret.Resolver
	Name     string
}

// Load implements Credentials.
func (s SecretCredentials) Load(ctx context.Context) ([]byte, error) {
	val, err := s.Resolver.GetSecret(ctx, s.Name)
	if err != nil {
		return nil, fmt.Errorf("unable to resolve credentials secret %q: %w", s.Name, err)
	}
	return []byte(val), nil
}

func (s SecretCredentials) String() string {
	return "secret:" + s.Name
}
