package cache

import (
	"context"

	"github.com/jun/drivemirror/internal/model"
)

// Index persists cache records. Blob content is kept by the Store; the
// Index only records which keys exist, whether they are pending, and when
// they expire.
type Index interface {
	// Get returns ErrNotFound when no record exists.
	Get(ctx context.Context, zone, section, key string) (*model.CacheRecord, error)
	Put(ctx context.Context, rec model.CacheRecord) error
	// Delete succeeds when the record does not exist.
	Delete(ctx context.Context, zone, section, key string) error
	DeleteZone(ctx context.Context, zone string) error
}
