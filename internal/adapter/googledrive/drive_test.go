package googledrive

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jun/drivemirror/internal/adapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestQuery(t *testing.T) {
	tests := []struct {
		name   string
		filter adapter.Filter
		want   string
	}{
		{"empty parent lists shared items", adapter.Filter{}, "sharedWithMe = true"},
		{"parent id", adapter.Filter{ParentID: "abc123"}, "'abc123' in parents"},
		{"quotes are escaped", adapter.Filter{ParentID: "a'b"}, `'a\'b' in parents`},
		{"backslashes are escaped", adapter.Filter{ParentID: `a\b`}, `'a\\b' in parents`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := query(tt.filter)
			if got != tt.want {
				t.Errorf("query(%+v) = %q, want %q", tt.filter, got, tt.want)
			}
		})
	}
}

// fakeDrive serves the subset of the Drive v3 REST API used by DriveAdapter.
type fakeDrive struct {
	t        *testing.T
	pages    map[string]map[string]any // page token -> response
	content  map[string]string
	metadata map[string]map[string]any
	queries  []string
	tokens   []string
	fields   []string
	auth     []string
}

func (f *fakeDrive) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	w.Header().Set("Content-Type", "application/json")

	if r.URL.Path == "/files" {
		f.queries = append(f.queries, r.URL.Query().Get("q"))
		token := r.URL.Query().Get("pageToken")
		f.tokens = append(f.tokens, token)
		assert.Equal(f.t, "name", r.URL.Query().Get("orderBy"))
		assert.Equal(f.t, "1000", r.URL.Query().Get("pageSize"))
		resp, ok := f.pages[token]
		if !ok {
			writeError(w, http.StatusBadRequest, "Invalid Value")
			return
		}
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/files/")
	if r.URL.Query().Get("alt") == "media" {
		body, ok := f.content[id]
		if !ok {
			writeError(w, http.StatusNotFound, "File not found: "+id)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = io.WriteString(w, body)
		return
	}

	f.fields = append(f.fields, r.URL.Query().Get("fields"))
	md, ok := f.metadata[id]
	if !ok {
		writeError(w, http.StatusNotFound, "File not found: "+id)
		return
	}
	_ = json.NewEncoder(w).Encode(md)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": msg},
	})
}

func newTestAdapter(t *testing.T, fake *fakeDrive) *DriveAdapter {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	d, err := NewDriveAdapter(context.Background(),
		option.WithHTTPClient(srv.Client()),
		option.WithEndpoint(srv.URL+"/"),
	)
	require.NoError(t, err)
	return d
}

func TestDriveAdapter_ListPage(t *testing.T) {
	fake := &fakeDrive{t: t, pages: map[string]map[string]any{
		"": {
			"nextPageToken": "p2",
			"files": []map[string]any{
				{"id": "f1", "name": "Docs", "mimeType": adapter.FolderMIMEType},
				{"id": "f2", "name": "notes.txt", "mimeType": "text/plain"},
			},
		},
		"p2": {
			"files": []map[string]any{
				{"id": "f3", "name": "zeta.pdf", "mimeType": "application/pdf"},
			},
		},
	}}
	d := newTestAdapter(t, fake)
	ctx := context.Background()

	first, err := d.ListPage(ctx, adapter.Filter{ParentID: "root-folder"}, 1000, "")
	require.NoError(t, err)
	assert.Equal(t, "p2", first.NextPageToken)
	require.Len(t, first.Items, 2)
	assert.True(t, first.Items[0].IsFolder())
	assert.Equal(t, "notes.txt", first.Items[1].Name)

	second, err := d.ListPage(ctx, adapter.Filter{ParentID: "root-folder"}, 1000, "p2")
	require.NoError(t, err)
	assert.Empty(t, second.NextPageToken)
	require.Len(t, second.Items, 1)
	assert.Equal(t, "f3", second.Items[0].ID)

	assert.Equal(t, []string{"'root-folder' in parents", "'root-folder' in parents"}, fake.queries)
	assert.Equal(t, []string{"", "p2"}, fake.tokens)
}

func TestDriveAdapter_ListPage_SharedWithMe(t *testing.T) {
	fake := &fakeDrive{t: t, pages: map[string]map[string]any{
		"": {"files": []map[string]any{}},
	}}
	d := newTestAdapter(t, fake)

	page, err := d.ListPage(context.Background(), adapter.Filter{}, 1000, "")
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.Equal(t, []string{"sharedWithMe = true"}, fake.queries)
}

func TestDriveAdapter_ListPage_ServiceError(t *testing.T) {
	fake := &fakeDrive{t: t, pages: map[string]map[string]any{}}
	d := newTestAdapter(t, fake)

	_, err := d.ListPage(context.Background(), adapter.Filter{ParentID: "x"}, 1000, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to list files")
	assert.NotErrorIs(t, err, adapter.ErrNotFound)
}

func TestDriveAdapter_GetMetadata(t *testing.T) {
	fake := &fakeDrive{t: t, metadata: map[string]map[string]any{
		"f2": {"id": "f2", "name": "notes.txt"},
	}}
	d := newTestAdapter(t, fake)
	ctx := context.Background()

	md, err := d.GetMetadata(ctx, "f2", "name")
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", md.Name)
	assert.Equal(t, []string{"name"}, fake.fields)

	_, err = d.GetMetadata(ctx, "missing")
	assert.ErrorIs(t, err, adapter.ErrNotFound)
	assert.Equal(t, metadataFields, fake.fields[1])
}

func TestDriveAdapter_OpenContent(t *testing.T) {
	fake := &fakeDrive{t: t, content: map[string]string{"f2": "hello, drive"}}
	d := newTestAdapter(t, fake)
	ctx := context.Background()

	rc, err := d.OpenContent(ctx, "f2")
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello, drive", string(body))

	_, err = d.OpenContent(ctx, "missing")
	assert.ErrorIs(t, err, adapter.ErrNotFound)
}

func serviceAccountJSON(t *testing.T, tokenURL string) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})

	data, err := json.Marshal(map[string]string{
		"type":           "service_account",
		"project_id":     "drivemirror-test",
		"private_key_id": "key-1",
		"private_key":    string(pemKey),
		"client_email":   "mirror@drivemirror-test.iam.gserviceaccount.com",
		"client_id":      "1234567890",
		"token_uri":      tokenURL,
	})
	require.NoError(t, err)
	return data
}

func TestServiceAccountAuthenticator_Authenticate(t *testing.T) {
	var tokenRequests int
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenRequests++
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "urn:ietf:params:oauth:grant-type:jwt-bearer", r.PostForm.Get("grant_type"))
		assert.NotEmpty(t, r.PostForm.Get("assertion"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"sa-token","token_type":"Bearer","expires_in":3600}`)
	}))
	defer tokenSrv.Close()

	fake := &fakeDrive{t: t, pages: map[string]map[string]any{"": {"files": []map[string]any{}}}}
	driveSrv := httptest.NewServer(fake)
	defer driveSrv.Close()

	a := NewServiceAccountAuthenticator(option.WithEndpoint(driveSrv.URL + "/"))
	svc, err := a.Authenticate(context.Background(), serviceAccountJSON(t, tokenSrv.URL))
	require.NoError(t, err)
	assert.Equal(t, 1, tokenRequests)

	_, err = svc.ListPage(context.Background(), adapter.Filter{}, 1000, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Bearer sa-token"}, fake.auth)
}

func TestServiceAccountAuthenticator_InvalidJSON(t *testing.T) {
	a := NewServiceAccountAuthenticator()
	_, err := a.Authenticate(context.Background(), []byte("not json"))
	assert.ErrorIs(t, err, adapter.ErrInvalidCredentials)
}

func TestServiceAccountAuthenticator_TokenRejected(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"invalid_grant","error_description":"Invalid JWT Signature."}`)
	}))
	defer tokenSrv.Close()

	a := NewServiceAccountAuthenticator()
	_, err := a.Authenticate(context.Background(), serviceAccountJSON(t, tokenSrv.URL))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to obtain service account token")
}
