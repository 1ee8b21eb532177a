package adapter

import (
	"context"
	"io"
)

// FolderMIMEType marks a remote item as a directory.
const FolderMIMEType = "application/vnd.google-apps.folder"

// Item is a single child returned by a listing page.
type Item struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MIMEType string `json:"mimeType"`
}

// IsFolder reports whether the item is a directory.
func (i Item) IsFolder() bool {
	return i.MIMEType == FolderMIMEType
}

// Metadata is the subset of remote item metadata returned by GetMetadata.
// Only the requested fields are populated.
type Metadata struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	MIMEType string   `json:"mimeType"`
	Size     int64    `json:"size"`
	Parents  []string `json:"parents,omitempty"`
}

// Filter selects which items a listing returns.
// A zero ParentID selects everything shared with the caller's identity.
type Filter struct {
	ParentID string
}

// SharedWithMe reports whether the filter targets the implicit root.
func (f Filter) SharedWithMe() bool {
	return f.ParentID == ""
}

// Page is one page of a paginated listing.
// An empty NextPageToken means the listing is exhausted.
type Page struct {
	Items         []Item
	NextPageToken string
}

// RemoteService defines the operations the mirror client needs from the
// remote store. Implementations handle the wire protocol and authorization.
type RemoteService interface {
	// ListPage returns one page of items matching filter, sorted by name.
	// pageToken is empty for the first page.
	ListPage(ctx context.Context, filter Filter, pageSize int, pageToken string) (*Page, error)

	// GetMetadata returns metadata for a single item.
	// fields restricts the returned attributes (for example "name").
	GetMetadata(ctx context.Context, id string, fields ...string) (*Metadata, error)

	// OpenContent opens the raw byte content of a file for sequential reading.
	// The caller must close the returned reader.
	OpenContent(ctx context.Context, id string) (io.ReadCloser, error)
}
