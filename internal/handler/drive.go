package handler

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jun/drivemirror/internal/model"
	"go.uber.org/zap"
)

// maxInlineContent is the largest file GetFileContent returns in a response
// body. API Gateway rejects larger Lambda payloads.
const maxInlineContent = 4 * 1024 * 1024

// Mirror is the subset of *drive.Client used by the handlers.
type Mirror interface {
	GetDirectoryList(ctx context.Context, parentID string) ([]model.Entry, error)
	GetFileName(ctx context.Context, id string) (string, error)
	GetFileLocalPath(ctx context.Context, id string) (string, error)
	CacheZoneName() (string, error)
	ClearCache(ctx context.Context) (bool, error)
	ListsTimeToLive() int
	FilesTimeToLive() int
}

// DriveHandler serves listings, names and file content.
type DriveHandler struct {
	mirror    Mirror
	jwtSecret string
}

// NewDriveHandler creates a new DriveHandler.
func NewDriveHandler(mirror Mirror, jwtSecret string) *DriveHandler {
	return &DriveHandler{mirror: mirror, jwtSecret: jwtSecret}
}

// ListFiles lists the children of the parentId query parameter, or the
// shared root when it is absent.
func (h *DriveHandler) ListFiles(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	denied, logger := authorize(ctx, req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}

	parentID := req.QueryStringParameters["parentId"]
	entries, err := h.mirror.GetDirectoryList(ctx, parentID)
	if err != nil {
		return errorResponse(logger, "Failed to list files", err), nil
	}
	return jsonResponse(http.StatusOK, entries)
}

// GetFileName returns {"id": ..., "name": ...} for the file in the path.
func (h *DriveHandler) GetFileName(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	denied, logger := authorize(ctx, req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}

	id := req.PathParameters["id"]
	if id == "" {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest, Body: "Missing file ID"}, nil
	}

	name, err := h.mirror.GetFileName(ctx, id)
	if err != nil {
		return errorResponse(logger, "Failed to get file name", err), nil
	}
	return jsonResponse(http.StatusOK, map[string]string{"id": id, "name": name})
}

// GetFileContent mirrors the file into the cache and returns its bytes.
func (h *DriveHandler) GetFileContent(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	denied, logger := authorize(ctx, req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}

	id := req.PathParameters["id"]
	if id == "" {
		return events.APIGatewayProxyResponse{StatusCode: http.StatusBadRequest, Body: "Missing file ID"}, nil
	}

	path, err := h.mirror.GetFileLocalPath(ctx, id)
	if err != nil {
		return errorResponse(logger, "Failed to fetch file", err), nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return errorResponse(logger, "Failed to read mirrored file", err), nil
	}
	if info.Size() > maxInlineContent {
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusRequestEntityTooLarge,
			Body:       fmt.Sprintf("File is %d bytes, larger than the %d byte response limit", info.Size(), maxInlineContent),
		}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return errorResponse(logger, "Failed to read mirrored file", err), nil
	}
	logger.Debug("serving mirrored file", zap.String("file_id", id), zap.Int("bytes", len(data)))

	return events.APIGatewayProxyResponse{
		StatusCode:      http.StatusOK,
		Body:            base64.StdEncoding.EncodeToString(data),
		IsBase64Encoded: true,
		Headers: map[string]string{
			"Content-Type":   "application/octet-stream",
			"Content-Length": fmt.Sprint(len(data)),
		},
	}, nil
}
