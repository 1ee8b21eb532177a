package handler

import (
	"context"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
)

// CacheHandler exposes the cache zone and its purge.
type CacheHandler struct {
	mirror    Mirror
	jwtSecret string
}

// NewCacheHandler creates a new CacheHandler.
func NewCacheHandler(mirror Mirror, jwtSecret string) *CacheHandler {
	return &CacheHandler{mirror: mirror, jwtSecret: jwtSecret}
}

type zoneResponse struct {
	Zone     string `json:"zone"`
	ListsTTL int    `json:"listsTtl"`
	FilesTTL int    `json:"filesTtl"`
}

// GetZone describes the bound cache.
func (h *CacheHandler) GetZone(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	denied, logger := authorize(ctx, req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}

	zone, err := h.mirror.CacheZoneName()
	if err != nil {
		return errorResponse(logger, "Failed to get cache zone", err), nil
	}
	return jsonResponse(http.StatusOK, zoneResponse{
		Zone:     zone,
		ListsTTL: h.mirror.ListsTimeToLive(),
		FilesTTL: h.mirror.FilesTimeToLive(),
	})
}

// Clear purges every cached listing and file of the zone.
func (h *CacheHandler) Clear(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	denied, logger := authorize(ctx, req, h.jwtSecret)
	if denied != nil {
		return *denied, nil
	}

	cleared, err := h.mirror.ClearCache(ctx)
	if err != nil {
		return errorResponse(logger, "Failed to clear cache", err), nil
	}
	logger.Info("cache purged by request")
	return jsonResponse(http.StatusOK, map[string]bool{"cleared": cleared})
}
