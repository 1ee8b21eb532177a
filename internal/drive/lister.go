package drive

import (
	"context"
	"encoding/json"

	"github.com/jun/drivemirror/internal/adapter"
	"github.com/jun/drivemirror/internal/cache"
	"github.com/jun/drivemirror/internal/metrics"
	"github.com/jun/drivemirror/internal/model"
	"go.uber.org/zap"
)

// GetDirectoryList returns the children of parentID in name order. An empty
// parentID lists everything shared with the service account.
//
// Listings are served from the cache when lists caching is enabled. Only a
// complete listing is ever cached.
func (c *Client) GetDirectoryList(ctx context.Context, parentID string) ([]model.Entry, error) {
	const op = "getDirectoryList"

	gw, listsTTL, _ := c.binding()
	caching := gw != nil && listsTTL >= 0
	if caching {
		entries, ok := c.cachedList(ctx, gw, parentID)
		if ok {
			return entries, nil
		}
	}

	svc, err := c.ensure(ctx, op, parentID)
	if err != nil {
		return nil, err
	}

	entries := make([]model.Entry, 0)
	p := newPager(svc, adapter.Filter{ParentID: parentID}, PageSize)
	for !p.Done() {
		items, err := p.Next(ctx)
		metrics.RecordRemoteCall("list", err)
		if err != nil {
			return nil, opError(op, parentID, ErrRemoteService, err)
		}
		for _, item := range items {
			entries = append(entries, toEntry(item))
		}
	}
	c.logger.Info("listed directory",
		zap.String("parent_id", parentID),
		zap.Int("pages", p.pages),
		zap.Int("entries", len(entries)),
	)

	if caching {
		data, err := json.Marshal(entries)
		if err != nil {
			return nil, opError(op, parentID, ErrCache, err)
		}
		if err := gw.Save(ctx, cache.SectionLists, parentID, data); err != nil {
			return nil, opError(op, parentID, ErrCache, err)
		}
	}
	return entries, nil
}

// cachedList returns a cached listing. Unreadable entries count as misses
// and are dropped.
func (c *Client) cachedList(ctx context.Context, gw cache.Gateway, parentID string) ([]model.Entry, bool) {
	data, ok, err := gw.Get(ctx, cache.SectionLists, parentID)
	if err != nil {
		c.logger.Warn("cache lookup failed", zap.String("parent_id", parentID), zap.Error(err))
		ok = false
	}
	var entries []model.Entry
	if ok {
		if err := json.Unmarshal(data, &entries); err != nil {
			c.logger.Warn("dropping undecodable cached listing", zap.String("parent_id", parentID), zap.Error(err))
			_ = gw.Clear(ctx, cache.SectionLists, parentID)
			ok = false
		}
	}
	metrics.RecordCacheLookup(cache.SectionLists, ok)
	if ok {
		c.logger.Debug("listing cache hit", zap.String("parent_id", parentID), zap.Int("entries", len(entries)))
	}
	return entries, ok
}

func toEntry(item adapter.Item) model.Entry {
	return model.Entry{
		ID:          item.ID,
		Name:        item.Name,
		IsDirectory: item.IsFolder(),
	}
}
