package googledrive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jun/drivemirror/internal/adapter"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const (
	listFields     = "nextPageToken, files(id, name, mimeType)"
	metadataFields = "id, name, mimeType, size, parents"
)

// DriveAdapter implements adapter.RemoteService for Google Drive.
type DriveAdapter struct {
	service *drive.Service
}

// NewDriveAdapter creates a new DriveAdapter.
// opts must carry the authorization, either a token source or an authenticated http.Client.
func NewDriveAdapter(ctx context.Context, opts ...option.ClientOption) (*DriveAdapter, error) {
	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve Drive client: %w", err)
	}
	return &DriveAdapter{service: srv}, nil
}

// query renders a listing filter in Drive query syntax.
func query(filter adapter.Filter) string {
	if filter.SharedWithMe() {
		return "sharedWithMe = true"
	}
	return fmt.Sprintf("'%s' in parents", escapeQuery(filter.ParentID))
}

// escapeQuery escapes a literal for use inside a single-quoted Drive query string.
func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}

// ListPage lists one page of children matching filter, ordered by name.
func (d *DriveAdapter) ListPage(ctx context.Context, filter adapter.Filter, pageSize int, pageToken string) (*adapter.Page, error) {
	call := d.service.Files.List().
		Q(query(filter)).
		PageSize(int64(pageSize)).
		OrderBy("name").
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Fields(googleapi.Field(listFields)).
		Context(ctx)
	if pageToken != "" {
		call = call.PageToken(pageToken)
	}

	r, err := call.Do()
	if err != nil {
		return nil, wrapError("unable to list files", err)
	}

	page := &adapter.Page{
		Items:         make([]adapter.Item, 0, len(r.Files)),
		NextPageToken: r.NextPageToken,
	}
	for _, f := range r.Files {
		page.Items = append(page.Items, adapter.Item{
			ID:       f.Id,
			Name:     f.Name,
			MIMEType: f.MimeType,
		})
	}
	return page, nil
}

// GetMetadata retrieves a file's metadata by its ID.
func (d *DriveAdapter) GetMetadata(ctx context.Context, id string, fields ...string) (*adapter.Metadata, error) {
	want := metadataFields
	if len(fields) > 0 {
		want = strings.Join(fields, ", ")
	}

	f, err := d.service.Files.Get(id).
		SupportsAllDrives(true).
		Fields(googleapi.Field(want)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapError("unable to get file metadata", err)
	}

	return &adapter.Metadata{
		ID:       f.Id,
		Name:     f.Name,
		MIMEType: f.MimeType,
		Size:     f.Size,
		Parents:  f.Parents,
	}, nil
}

// OpenContent opens the media stream of a file.
func (d *DriveAdapter) OpenContent(ctx context.Context, id string) (io.ReadCloser, error) {
	resp, err := d.service.Files.Get(id).
		SupportsAllDrives(true).
		Context(ctx).
		Download()
	if err != nil {
		return nil, wrapError("unable to download file", err)
	}
	return resp.Body, nil
}

func wrapError(msg string, err error) error {
	switch {
	case isNotFound(err):
		return fmt.Errorf("%s: %w: %w", msg, adapter.ErrNotFound, err)
	case isForbidden(err):
		return fmt.Errorf("%s: %w: %w", msg, adapter.ErrForbidden, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func isNotFound(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code == 404
	}
	return false
}

func isForbidden(err error) bool {
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code == 403
	}
	return false
}
