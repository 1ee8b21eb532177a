// Package app wires configuration, the mirror client and the HTTP handlers
// for the Lambda function and the local server.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"go.uber.org/zap"

	"github.com/jun/drivemirror/internal/adapter/googledrive"
	"github.com/jun/drivemirror/internal/adapter/memory"
	"github.com/jun/drivemirror/internal/auth"
	"github.com/jun/drivemirror/internal/cache"
	"github.com/jun/drivemirror/internal/config"
	"github.com/jun/drivemirror/internal/drive"
	"github.com/jun/drivemirror/internal/handler"
	"github.com/jun/drivemirror/internal/logging"
	"github.com/jun/drivemirror/internal/secret"
)

const devJWTSecret = "default-dev-secret"

// Deps are the process-wide collaborators built from a Config.
type Deps struct {
	Client   *drive.Client
	Resolver secret.Resolver
	// Remote is the in-memory remote served in dev mode, nil otherwise.
	Remote *memory.Store
}

// NewDeps builds the mirror client described by cfg. AWS clients are only
// created when SSM or DynamoDB is actually used.
func NewDeps(ctx context.Context, cfg *config.Config) (*Deps, error) {
	logger := logging.L()

	var loaded *aws.Config
	awsConfig := func() (aws.Config, error) {
		if loaded != nil {
			return *loaded, nil
		}
		c, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return aws.Config{}, fmt.Errorf("unable to load SDK config: %w", err)
		}
		loaded = &c
		return c, nil
	}

	deps := &Deps{}
	var authenticator auth.Authenticator
	if cfg.DevMode {
		deps.Remote = memory.NewStore()
		seedDevStore(deps.Remote)
		authenticator = memory.NewAuthenticator(deps.Remote)
		deps.Resolver = secret.ChainResolver{
			secret.NewEnvResolver("DRIVEMIRROR_"),
			secret.StaticResolver{
				cfg.CredentialsParam: `{"type":"service_account","client_email":"dev@drivemirror.local"}`,
				cfg.JWTSecretParam:   devJWTSecret,
			},
		}
		logger.Info("using in-memory remote and env secrets (DEV_MODE=true)")
	} else {
		authenticator = googledrive.NewServiceAccountAuthenticator()
		if cfg.CredentialsFile == "" {
			awsCfg, err := awsConfig()
			if err != nil {
				return nil, err
			}
			deps.Resolver = secret.NewSSMResolver(ssm.NewFromConfig(awsCfg))
		}
	}

	deps.Client = drive.New(drive.Options{
		Authenticator:   authenticator,
		Logger:          logger,
		DownloadTimeout: time.Duration(cfg.DownloadTimeout) * time.Second,
	})

	var err error
	if cfg.CredentialsFile != "" {
		err = deps.Client.SetServiceAccountCredentials(cfg.CredentialsFile)
	} else {
		err = deps.Client.SetServiceAccountSecret(deps.Resolver, cfg.CredentialsParam)
	}
	if err != nil {
		return nil, err
	}

	var opts []cache.StoreOption
	if cfg.CacheIndex == config.IndexDynamoDB {
		awsCfg, err := awsConfig()
		if err != nil {
			return nil, err
		}
		index := cache.NewDynamoIndex(dynamodb.NewFromConfig(awsCfg), cfg.CacheTable, cfg.CacheOwner)
		opts = append(opts, cache.WithIndex(index))
		logger.Info("using DynamoDB cache index",
			zap.String("table", cfg.CacheTable),
			zap.String("owner", index.Owner()),
		)
	}
	if err := deps.Client.EnableCacheAt(cfg.CacheRoot, cfg.CacheZone, cfg.ListsTTL, cfg.FilesTTL, opts...); err != nil {
		return nil, err
	}
	return deps, nil
}

// seedDevStore fills the dev remote with a small shared tree.
func seedDevStore(store *memory.Store) {
	docs := store.AddFolder("Docs", "")
	store.AddFile("welcome.md", "text/markdown", docs, []byte("# Welcome to drivemirror\n\nThis file lives in the in-memory dev remote.\n"))
	store.AddFile("notes.txt", "text/plain", "", []byte("Shared notes.\n"))
}

// App holds the dependencies for the Lambda function.
type App struct {
	deps         *Deps
	driveHandler *handler.DriveHandler
	cacheHandler *handler.CacheHandler
}

// NewApp initializes the application dependencies.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	deps, err := NewDeps(ctx, cfg)
	if err != nil {
		return nil, err
	}

	resolver := deps.Resolver
	if resolver == nil {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("unable to load SDK config: %w", err)
		}
		resolver = secret.NewSSMResolver(ssm.NewFromConfig(awsCfg))
	}

	jwtSecret, err := resolver.GetSecret(ctx, cfg.JWTSecretParam)
	if err != nil {
		if !cfg.DevMode {
			return nil, fmt.Errorf("failed to resolve JWT secret: %w", err)
		}
		logging.L().Warn("failed to resolve JWT secret, using dev default", zap.Error(err))
		jwtSecret = devJWTSecret
	}

	return &App{
		deps:         deps,
		driveHandler: handler.NewDriveHandler(deps.Client, jwtSecret),
		cacheHandler: handler.NewCacheHandler(deps.Client, jwtSecret),
	}, nil
}

// Client returns the mirror client.
func (app *App) Client() *drive.Client {
	return app.deps.Client
}

// HandleRequest routes API Gateway requests to the appropriate handler.
func (app *App) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	ctx = logging.WithRequestID(ctx, req.RequestContext.RequestID)
	logger := logging.WithContext(ctx)

	// Strip /api prefix if present (for CloudFront proxying)
	path := strings.TrimPrefix(req.Path, "/api")
	method := req.HTTPMethod
	logger.Debug("request", zap.String("method", method), zap.String("path", path))

	if method == http.MethodOptions {
		return corsResponse(events.APIGatewayProxyResponse{StatusCode: http.StatusNoContent}), nil
	}

	if req.PathParameters == nil {
		req.PathParameters = make(map[string]string)
	}

	switch {
	case path == "/files" && method == http.MethodGet:
		return serve(ctx, logger, app.driveHandler.ListFiles, req), nil

	case strings.HasPrefix(path, "/files/"):
		parts := strings.Split(strings.Trim(strings.TrimPrefix(path, "/files/"), "/"), "/")
		if len(parts) == 2 && method == http.MethodGet {
			req.PathParameters["id"] = parts[0]
			switch parts[1] {
			case "name":
				return serve(ctx, logger, app.driveHandler.GetFileName, req), nil
			case "content":
				return serve(ctx, logger, app.driveHandler.GetFileContent, req), nil
			}
		}

	case path == "/cache/zone" && method == http.MethodGet:
		return serve(ctx, logger, app.cacheHandler.GetZone, req), nil

	case path == "/cache/clear" && method == http.MethodPost:
		return serve(ctx, logger, app.cacheHandler.Clear, req), nil
	}

	return corsResponse(events.APIGatewayProxyResponse{
		StatusCode: http.StatusNotFound,
		Body:       fmt.Sprintf("Not Found: %s %s", method, path),
	}), nil
}

// corsResponse adds CORS headers to an API Gateway response.
func corsResponse(resp events.APIGatewayProxyResponse) events.APIGatewayProxyResponse {
	if resp.Headers == nil {
		resp.Headers = make(map[string]string)
	}
	resp.Headers["Access-Control-Allow-Origin"] = os.Getenv("FRONTEND_URL")
	if resp.Headers["Access-Control-Allow-Origin"] == "" {
		resp.Headers["Access-Control-Allow-Origin"] = "http://localhost:3000"
	}
	resp.Headers["Access-Control-Allow-Credentials"] = "true"
	resp.Headers["Access-Control-Allow-Methods"] = "GET,POST,OPTIONS"
	resp.Headers["Access-Control-Allow-Headers"] = "Content-Type,Authorization"
	return resp
}

type handlerFunc func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// serve runs h and adds CORS headers, turning a handler error into a 500.
func serve(ctx context.Context, logger *zap.Logger, h handlerFunc, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	resp, err := h(ctx, req)
	if err != nil {
		logger.Error("handler error", zap.Error(err))
		resp = events.APIGatewayProxyResponse{StatusCode: http.StatusInternalServerError, Body: "Internal Server Error"}
	}
	return corsResponse(resp)
}
