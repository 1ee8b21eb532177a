package googledrive

import (
	"context"
	"fmt"

	"github.com/jun/drivemirror/internal/adapter"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// ServiceAccountAuthenticator exchanges service account credentials for an
// authorized Drive adapter.
type ServiceAccountAuthenticator struct {
	// Scopes requested for the access token. Defaults to read-only Drive access.
	Scopes []string

	// TokenURL overrides the token endpoint found in the credentials file.
	TokenURL string

	// Options are appended to the Drive client options (endpoint overrides in tests).
	Options []option.ClientOption
}

// NewServiceAccountAuthenticator creates an authenticator with read-only Drive scope.
func NewServiceAccountAuthenticator(opts ...option.ClientOption) *ServiceAccountAuthenticator {
	return &ServiceAccountAuthenticator{
		Scopes:  []string{drive.DriveReadonlyScope},
		Options: opts,
	}
}

// Authenticate parses the service account JSON, obtains an access token and
// builds the Drive adapter that uses it.
func (a *ServiceAccountAuthenticator) Authenticate(ctx context.Context, credentialsJSON []byte) (adapter.RemoteService, error) {
	scopes := a.Scopes
	if len(scopes) == 0 {
		scopes = []string{drive.DriveReadonlyScope}
	}

	cfg, err := google.JWTConfigFromJSON(credentialsJSON, scopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse service account credentials: %w: %w", adapter.ErrInvalidCredentials, err)
	}
	if a.TokenURL != "" {
		cfg.TokenURL = a.TokenURL
	}

	// The token source outlives the triggering call and refreshes on its own.
	ts := cfg.TokenSource(context.WithoutCancel(ctx))
	if _, err := ts.Token(); err != nil {
		return nil, fmt.Errorf("unable to obtain service account token: %w", err)
	}

	opts := append([]option.ClientOption{option.WithTokenSource(ts)}, a.Options...)
	return NewDriveAdapter(ctx, opts...)
}
