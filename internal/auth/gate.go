// Package auth defers authentication against the remote store until a
// caller actually needs it, and remembers the outcome.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jun/drivemirror/internal/adapter"
	"github.com/jun/drivemirror/internal/metrics"
	"go.uber.org/zap"
)

var (
	// ErrNoCredentials is returned when Ensure runs before credentials were set.
	ErrNoCredentials = errors.New("no credentials configured")

	// ErrNoStrategy is returned when the gate has no authenticator.
	ErrNoStrategy = errors.New("no authentication strategy configured")

	// ErrSessionBound is returned when credentials change after a successful authentication.
	ErrSessionBound = errors.New("session already authenticated")
)

// Authenticator exchanges a credentials document for an authorized remote service.
type Authenticator interface {
	Authenticate(ctx context.Context, credentialsJSON []byte) (adapter.RemoteService, error)
}

type sessionState int

const (
	unauthenticated sessionState = iota
	authenticated
)

// Gate owns the session of one client. It moves from unauthenticated to
// authenticated at most once and never back.
type Gate struct {
	authenticator Authenticator
	logger        *zap.Logger

	mu      sync.Mutex
	state   sessionState
	creds   Credentials
	service adapter.RemoteService
}

// NewGate creates an unauthenticated Gate that uses authenticator.
func NewGate(authenticator Authenticator, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{authenticator: authenticator, logger: logger}
}

// SetCredentials sets the credentials used by the next authentication attempt.
func (g *Gate) SetCredentials(creds Credentials) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == authenticated {
		return ErrSessionBound
	}
	g.creds = creds
	return nil
}

// Ensure authenticates if needed and returns the remote service handle.
// A failed attempt leaves the session unauthenticated so the next call retries.
func (g *Gate) Ensure(ctx context.Context) (adapter.RemoteService, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == authenticated {
		return g.service, nil
	}
	if g.authenticator == nil {
		return nil, ErrNoStrategy
	}
	if g.creds == nil {
		return nil, ErrNoCredentials
	}

	service, err := g.authenticate(ctx)
	metrics.RecordAuthAttempt(err)
	if err != nil {
		g.logger.Warn("authentication failed",
			zap.String("credentials", g.creds.String()),
			zap.Error(err),
		)
		return nil, err
	}

	g.service = service
	g.state = authenticated
	g.logger.Info("authenticated", zap.String("credentials", g.creds.String()))
	return service, nil
}

func (g *Gate) authenticate(ctx context.Context) (adapter.RemoteService, error) {
	data, err := g.creds.Load(ctx)
	if err != nil {
		return nil, err
	}
	service, err := g.authenticator.Authenticate(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("authenticate with %s: %w", g.creds, err)
	}
	if service == nil {
		return nil, fmt.Errorf("authenticate with %s: no service returned", g.creds)
	}
	return service, nil
}
