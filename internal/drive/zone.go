package drive

import (
	"context"

	"github.com/jun/drivemirror/internal/cache"
	"go.uber.org/zap"
)

// EnableCache binds gw as the client's cache. TTLs are in seconds: 0 never
// expires and a negative value disables caching for that section. A client
// can be bound only once.
func (c *Client) EnableCache(gw cache.Gateway, listsTTL, filesTTL int) error {
	const op = "enableCache"
	if gw == nil {
		return configError(op, "", "cache gateway is nil")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cache != nil {
		return configError(op, "", "cache already enabled for zone %q", c.cache.Zone())
	}

	gw.SetSectionTTL(cache.SectionLists, listsTTL)
	gw.SetSectionTTL(cache.SectionFiles, filesTTL)
	c.cache = gw
	c.listsTTL = listsTTL
	c.filesTTL = filesTTL

	c.logger.Info("cache enabled",
		zap.String("zone", gw.Zone()),
		zap.Int("lists_ttl", listsTTL),
		zap.Int("files_ttl", filesTTL),
	)
	return nil
}

// EnableCacheAt opens a cache.Store for zone under rootPath and binds it.
func (c *Client) EnableCacheAt(rootPath, zone string, listsTTL, filesTTL int, opts ...cache.StoreOption) error {
	const op = "enableCache"
	if gw, _, _ := c.binding(); gw != nil {
		return configError(op, "", "cache already enabled for zone %q", gw.Zone())
	}

	store, err := cache.NewStore(rootPath, zone, opts...)
	if err != nil {
		return opError(op, "", ErrConfiguration, err)
	}
	return c.EnableCache(store, listsTTL, filesTTL)
}

// ListsTimeToLive returns the listing TTL, or -1 before EnableCache.
func (c *Client) ListsTimeToLive() int {
	gw, ttl, _ := c.binding()
	if gw == nil {
		return -1
	}
	return ttl
}

// FilesTimeToLive returns the file content TTL, or -1 before EnableCache.
func (c *Client) FilesTimeToLive() int {
	gw, _, ttl := c.binding()
	if gw == nil {
		return -1
	}
	return ttl
}

// CacheZoneName returns the zone of the bound cache.
func (c *Client) CacheZoneName() (string, error) {
	gw, _, _ := c.binding()
	if gw == nil {
		return "", configError("getCacheZoneName", "", "cache not enabled")
	}
	return gw.Zone(), nil
}

// ClearCache removes every listing and file of the client's zone.
func (c *Client) ClearCache(ctx context.Context) (bool, error) {
	const op = "clearCache"
	gw, _, _ := c.binding()
	if gw == nil {
		return false, configError(op, "", "cache not enabled")
	}

	if err := gw.ClearZone(ctx); err != nil {
		return false, opError(op, "", ErrCache, err)
	}
	c.logger.Info("cache cleared", zap.String("zone", gw.Zone()))
	return true, nil
}
