package drive

import (
	"context"
	"fmt"

	"github.com/jun/drivemirror/internal/adapter"
)

// pager walks a paginated listing once, following continuation tokens until
// the remote returns none. It cannot be restarted.
type pager struct {
	service  adapter.RemoteService
	filter   adapter.Filter
	pageSize int

	token string
	pages int
	done  bool
}

func newPager(service adapter.RemoteService, filter adapter.Filter, pageSize int) *pager {
	return &pager{service: service, filter: filter, pageSize: pageSize}
}

// Done reports whether the last page has been returned.
func (p *pager) Done() bool {
	return p.done
}

// Next requests the following page.
func (p *pager) Next(ctx context.Context) ([]adapter.Item, error) {
	if p.done {
		return nil, nil
	}

	page, err := p.service.ListPage(ctx, p.filter, p.pageSize, p.token)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", p.pages+1, err)
	}
	p.pages++

	if page.NextPageToken != "" && page.NextPageToken == p.token {
		return nil, fmt.Errorf("page %d: remote repeated page token %q", p.pages, p.token)
	}
	p.token = page.NextPageToken
	p.done = p.token == ""
	return page.Items, nil
}
