// Package drive is a remote file store client that mirrors listings and
// file content into a local cache. Authentication happens on the first call
// that misses the cache.
package drive

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jun/drivemirror/internal/adapter"
	"github.com/jun/drivemirror/internal/auth"
	"github.com/jun/drivemirror/internal/cache"
	"github.com/jun/drivemirror/internal/logging"
	"github.com/jun/drivemirror/internal/metrics"
	"github.com/jun/drivemirror/internal/secret"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// PageSize is the number of items requested per listing page.
const PageSize = 1000

// Options configures a Client.
type Options struct {
	// Authenticator turns service account credentials into a remote service.
	Authenticator auth.Authenticator
	// Logger defaults to logging.L().
	Logger *zap.Logger
	// DownloadTimeout bounds one shared file download. Zero leaves it to
	// the transport.
	DownloadTimeout time.Duration
}

// Client is safe for concurrent use.
type Client struct {
	gate   *auth.Gate
	logger *zap.Logger

	mu       sync.RWMutex
	cache    cache.Gateway
	listsTTL int
	filesTTL int

	downloads       singleflight.Group
	downloadTimeout time.Duration
}

// New creates an unauthenticated Client without a cache.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	return &Client{
		gate:            auth.NewGate(opts.Authenticator, logger),
		logger:          logger,
		downloadTimeout: opts.DownloadTimeout,
	}
}

// SetServiceAccountCredentials sets the path of the service account JSON
// file used on first authentication.
func (c *Client) SetServiceAccountCredentials(path string) error {
	const op = "setServiceAccountCredentials"
	if path == "" {
		return configError(op, "", "credentials path is empty")
	}
	return c.setCredentials(op, auth.FileCredentials(path))
}

// SetServiceAccountSecret reads the service account JSON from the named
// secret on first authentication.
func (c *Client) SetServiceAccountSecret(resolver secret.Resolver, name string) error {
	const op = "setServiceAccountSecret"
	if resolver == nil || name == "" {
		return configError(op, "", "secret resolver and name are required")
	}
	return c.setCredentials(op, auth.SecretCredentials{Resolver: resolver, Name: name})
}

func (c *Client) setCredentials(op string, creds auth.Credentials) error {
	if err := c.gate.SetCredentials(creds); err != nil {
		return opError(op, "", ErrConfiguration, err)
	}
	return nil
}

// ensure authenticates on demand and classifies gate failures.
func (c *Client) ensure(ctx context.Context, op, id string) (adapter.RemoteService, error) {
	svc, err := c.gate.Ensure(ctx)
	if err == nil {
		return svc, nil
	}
	if errors.Is(err, auth.ErrNoCredentials) || errors.Is(err, auth.ErrNoStrategy) {
		return nil, opError(op, id, ErrConfiguration, err)
	}
	return nil, opError(op, id, ErrAuthentication, err)
}

// binding returns the cache and its TTLs. The cache is nil until EnableCache.
func (c *Client) binding() (cache.Gateway, int, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache, c.listsTTL, c.filesTTL
}

// GetFileName returns the display name of a file or folder.
func (c *Client) GetFileName(ctx context.Context, id string) (string, error) {
	const op = "getFileName"
	svc, err := c.ensure(ctx, op, id)
	if err != nil {
		return "", err
	}

	md, err := svc.GetMetadata(ctx, id, "name")
	metrics.RecordRemoteCall("metadata", err)
	if err != nil {
		return "", opError(op, id, ErrRemoteService, err)
	}
	return md.Name, nil
}
