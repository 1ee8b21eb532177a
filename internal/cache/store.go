package cache

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jun/drivemirror/internal/model"
)

// Store is a Gateway keeping blobs under <root>/<zone>/<section>/ and
// records in an Index. Keys are path-escaped, so any key maps to a single
// file inside its section directory.
type Store struct {
	root  string
	zone  string
	index Index
	now   func() time.Time

	mu   sync.RWMutex
	ttls map[string]int
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithIndex replaces the default FileIndex.
func WithIndex(index Index) StoreOption {
	return func(s *Store) { s.index = index }
}

// WithClock sets the time source used for expiry.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore opens the zone under root, creating its directory.
func NewStore(root, zone string, opts ...StoreOption) (*Store, error) {
	if root == "" {
		return nil, errors.New("cache root path is empty")
	}
	if err := validateZone(zone); err != nil {
		return nil, err
	}

	s := &Store{
		root: root,
		zone: zone,
		now:  time.Now,
		ttls: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.index == nil {
		s.index = NewFileIndex(root)
	}

	if err := os.MkdirAll(filepath.Join(root, zone), dirPerms); err != nil {
		return nil, fmt.Errorf("create cache zone dir: %w", err)
	}
	return s, nil
}

func validateZone(zone string) error {
	if zone == "" || zone == "." || zone == ".." || strings.ContainsAny(zone, `/\`) {
		return fmt.Errorf("invalid cache zone name %q", zone)
	}
	return nil
}

// Zone returns the zone name.
func (s *Store) Zone() string {
	return s.zone
}

// SetSectionTTL sets the TTL in seconds for section.
func (s *Store) SetSectionTTL(section string, ttl int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttls[section] = ttl
}

// SectionTTL returns the TTL of section. Sections never configured do not expire.
func (s *Store) SectionTTL(section string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ttls[section]
}

// BlobPath returns where the blob for key is stored.
func (s *Store) BlobPath(section, key string) string {
	return filepath.Join(s.root, s.zone, section, "k_"+url.PathEscape(key))
}

// lookup returns the committed, unexpired record for key, or nil.
// Expired records are removed.
func (s *Store) lookup(ctx context.Context, section, key string) (*model.CacheRecord, error) {
	if s.SectionTTL(section) < 0 {
		return nil, nil
	}

	rec, err := s.index.Get(ctx, s.zone, section, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if rec.Pending {
		return nil, nil
	}
	if rec.Expired(s.now().Unix()) {
		if err := s.Clear(ctx, section, key); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return rec, nil
}

// Get returns the value stored under key.
func (s *Store) Get(ctx context.Context, section, key string) ([]byte, bool, error) {
	rec, err := s.lookup(ctx, section, key)
	if err != nil || rec == nil {
		return nil, false, err
	}

	data, err := os.ReadFile(s.BlobPath(section, key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, s.index.Delete(ctx, s.zone, section, key)
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cache blob: %w", err)
	}
	return data, true, nil
}

// Path returns the blob path of a committed key.
func (s *Store) Path(ctx context.Context, section, key string) (string, bool, error) {
	rec, err := s.lookup(ctx, section, key)
	if err != nil || rec == nil {
		return "", false, err
	}

	path := s.BlobPath(section, key)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", false, s.index.Delete(ctx, s.zone, section, key)
		}
		return "", false, fmt.Errorf("stat cache blob: %w", err)
	}
	return path, true, nil
}

// Save stores value under key. The blob is written atomically (temp file then rename).
func (s *Store) Save(ctx context.Context, section, key string, value []byte) error {
	if s.SectionTTL(section) < 0 {
		return fmt.Errorf("save %s/%s: %w", section, key, ErrDisabled)
	}

	path := s.BlobPath(section, key)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerms); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".k_*.tmp")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp blob: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename temp blob: %w", err)
	}

	return s.index.Put(ctx, s.record(section, key, false))
}

// Reserve records a pending entry for key and creates its empty blob.
// The returned path is where the caller writes the content before Commit.
func (s *Store) Reserve(ctx context.Context, section, key string) (string, error) {
	if s.SectionTTL(section) < 0 {
		return "", fmt.Errorf("reserve %s/%s: %w", section, key, ErrDisabled)
	}

	path := s.BlobPath(section, key)
	if err := os.MkdirAll(filepath.Dir(path), dirPerms); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}
	if err := s.index.Put(ctx, s.record(section, key, true)); err != nil {
		return "", err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePerms)
	if err != nil {
		_ = s.index.Delete(ctx, s.zone, section, key)
		return "", fmt.Errorf("create cache blob: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = s.Clear(ctx, section, key)
		return "", fmt.Errorf("close cache blob: %w", err)
	}
	return path, nil
}

// Commit marks a reserved key complete and starts its TTL.
func (s *Store) Commit(ctx context.Context, section, key string) error {
	rec, err := s.index.Get(ctx, s.zone, section, key)
	if errors.Is(err, ErrNotFound) || (err == nil && !rec.Pending) {
		return fmt.Errorf("commit %s/%s: %w", section, key, ErrNotReserved)
	}
	if err != nil {
		return err
	}
	if _, err := os.Stat(s.BlobPath(section, key)); err != nil {
		return fmt.Errorf("commit %s/%s: %w", section, key, err)
	}
	return s.index.Put(ctx, s.record(section, key, false))
}

// Clear removes key and its blob.
func (s *Store) Clear(ctx context.Context, section, key string) error {
	if err := s.index.Delete(ctx, s.zone, section, key); err != nil {
		return err
	}
	if err := os.Remove(s.BlobPath(section, key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete cache blob: %w", err)
	}
	return nil
}

// ClearZone removes every key of the zone in all sections.
func (s *Store) ClearZone(ctx context.Context) error {
	if err := s.index.DeleteZone(ctx, s.zone); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.root, s.zone)); err != nil {
		return fmt.Errorf("delete cache zone: %w", err)
	}
	return nil
}

func (s *Store) record(section, key string, pending bool) model.CacheRecord {
	now := s.now().Unix()
	rec := model.CacheRecord{
		Zone:     s.zone,
		Section:  section,
		Key:      key,
		Pending:  pending,
		StoredAt: now,
	}
	if ttl := s.SectionTTL(section); ttl > 0 && !pending {
		rec.ExpiresAt = now + int64(ttl)
	}
	return rec
}
