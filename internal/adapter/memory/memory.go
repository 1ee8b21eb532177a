package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/jun/drivemirror/internal/adapter"
)

type file struct {
	meta    adapter.Metadata
	content []byte
	shared  bool
}

// Store implements adapter.RemoteService over an in-memory tree.
// It is used by tests and by DEV_MODE, and can inject failures.
type Store struct {
	files map[string]*file
	mu    sync.RWMutex

	listCalls     int
	metadataCalls int
	contentCalls  int

	listFailAfter int // pages served before listErr fires; <0 disables
	listErr       error
	contentErr    map[string]contentFailure
}

type contentFailure struct {
	openErr   error
	readErr   error
	failAfter int
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		files:         make(map[string]*file),
		listFailAfter: -1,
		contentErr:    make(map[string]contentFailure),
	}
}

func (m *Store) add(name, mimeType, parentID string, content []byte) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	f := &file{
		meta: adapter.Metadata{
			ID:       id,
			Name:     name,
			MIMEType: mimeType,
			Size:     int64(len(content)),
		},
		content: content,
	}
	if parentID != "" {
		f.meta.Parents = []string{parentID}
	} else {
		f.shared = true
	}
	m.files[id] = f
	return id
}

// AddFolder creates a folder under parentID and returns its ID.
// An empty parentID shares the folder directly with the caller.
func (m *Store) AddFolder(name, parentID string) string {
	return m.add(name, adapter.FolderMIMEType, parentID, nil)
}

// AddFile creates a file under parentID and returns its ID.
// An empty parentID shares the file directly with the caller.
func (m *Store) AddFile(name, mimeType, parentID string, content []byte) string {
	return m.add(name, mimeType, parentID, content)
}

// FailListAfter makes ListPage return err once pages pages have been served.
func (m *Store) FailListAfter(pages int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listFailAfter = pages
	m.listErr = err
}

// FailOpen makes OpenContent for id fail with err.
func (m *Store) FailOpen(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contentErr[id] = contentFailure{openErr: err}
}

// FailRead makes the content stream for id fail with err after n bytes.
func (m *Store) FailRead(id string, n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contentErr[id] = contentFailure{readErr: err, failAfter: n}
}

// ListCalls returns the number of ListPage calls served.
func (m *Store) ListCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listCalls
}

// MetadataCalls returns the number of GetMetadata calls served.
func (m *Store) MetadataCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metadataCalls
}

// ContentCalls returns the number of OpenContent calls served.
func (m *Store) ContentCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.contentCalls
}

func (m *Store) children(filter adapter.Filter) []adapter.Item {
	var items []adapter.Item
	for _, f := range m.files {
		match := false
		if filter.SharedWithMe() {
			match = f.shared
		} else {
			for _, p := range f.meta.Parents {
				if p == filter.ParentID {
					match = true
					break
				}
			}
		}
		if match {
			items = append(items, adapter.Item{ID: f.meta.ID, Name: f.meta.Name, MIMEType: f.meta.MIMEType})
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].ID < items[j].ID
	})
	return items
}

// ListPage returns one page of children, sorted by name.
// Page tokens are opaque offsets into the sorted listing.
func (m *Store) ListPage(ctx context.Context, filter adapter.Filter, pageSize int, pageToken string) (*adapter.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listFailAfter >= 0 && m.listCalls >= m.listFailAfter {
		m.listCalls++
		return nil, fmt.Errorf("unable to list files: %w", m.listErr)
	}
	m.listCalls++

	if pageSize <= 0 {
		return nil, fmt.Errorf("invalid page size %d", pageSize)
	}

	offset := 0
	if pageToken != "" {
		n, err := strconv.Atoi(pageToken)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid page token %q", pageToken)
		}
		offset = n
	}

	items := m.children(filter)
	if offset > len(items) {
		offset = len(items)
	}
	end := offset + pageSize
	if end > len(items) {
		end = len(items)
	}

	page := &adapter.Page{Items: items[offset:end]}
	if end < len(items) {
		page.NextPageToken = strconv.Itoa(end)
	}
	return page, nil
}

// GetMetadata returns the metadata of a single item.
func (m *Store) GetMetadata(ctx context.Context, id string, fields ...string) (*adapter.Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.metadataCalls++

	f, ok := m.files[id]
	if !ok {
		return nil, adapter.ErrNotFound
	}
	meta := f.meta
	return &meta, nil
}

// OpenContent opens the content of a file.
func (m *Store) OpenContent(ctx context.Context, id string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contentCalls++

	f, ok := m.files[id]
	if !ok {
		return nil, adapter.ErrNotFound
	}
	if f.meta.MIMEType == adapter.FolderMIMEType {
		return nil, fmt.Errorf("cannot download folder %s", id)
	}

	failure, failing := m.contentErr[id]
	if failing && failure.openErr != nil {
		return nil, failure.openErr
	}

	content := make([]byte, len(f.content))
	copy(content, f.content)
	r := &reader{r: bytes.NewReader(content), failAfter: -1}
	if failing {
		r.failAfter = failure.failAfter
		r.err = failure.readErr
	}
	return r, nil
}

// reader fails with err once failAfter bytes have been read.
type reader struct {
	r         *bytes.Reader
	read      int
	failAfter int
	err       error
	closed    bool
}

func (r *reader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, fmt.Errorf("read on closed stream")
	}
	if r.failAfter >= 0 {
		left := r.failAfter - r.read
		if left <= 0 {
			return 0, r.err
		}
		if len(p) > left {
			p = p[:left]
		}
	}
	n, err := r.r.Read(p)
	r.read += n
	return n, err
}

func (r *reader) Close() error {
	r.closed = true
	return nil
}

// Authenticator accepts any well-formed JSON credentials document and hands
// out the wrapped Store.
type Authenticator struct {
	Store *Store
	Err   error

	mu    sync.Mutex
	calls int
}

// NewAuthenticator creates an Authenticator for store.
func NewAuthenticator(store *Store) *Authenticator {
	return &Authenticator{Store: store}
}

// Authenticate validates the credentials document.
func (a *Authenticator) Authenticate(ctx context.Context, credentialsJSON []byte) (adapter.RemoteService, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++

	if a.Err != nil {
		return nil, a.Err
	}
	if !json.Valid(credentialsJSON) {
		return nil, fmt.Errorf("unable to parse credentials: %w", adapter.ErrInvalidCredentials)
	}
	return a.Store, nil
}

// Calls returns the number of Authenticate calls.
func (a *Authenticator) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}
