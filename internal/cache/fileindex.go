package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/jun/drivemirror/internal/model"
)

const (
	dirPerms  = 0o700
	filePerms = 0o600
)

// FileIndex keeps one JSON sidecar per record on the local filesystem.
type FileIndex struct {
	root string
}

// NewFileIndex creates a FileIndex rooted at root.
func NewFileIndex(root string) *FileIndex {
	return &FileIndex{root: root}
}

func (x *FileIndex) path(zone, section, key string) string {
	return filepath.Join(x.root, zone, section, "m_"+url.PathEscape(key)+".json")
}

// Get reads the sidecar for key. A corrupt sidecar is removed and reported
// as ErrNotFound.
func (x *FileIndex) Get(_ context.Context, zone, section, key string) (*model.CacheRecord, error) {
	path := x.path(zone, section, key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read cache record: %w", err)
	}

	var rec model.CacheRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("corrupt cache record %s: %w", path, ErrNotFound)
	}
	return &rec, nil
}

// Put writes the sidecar atomically.
func (x *FileIndex) Put(_ context.Context, rec model.CacheRecord) error {
	path := x.path(rec.Zone, rec.Section, rec.Key)
	if err := os.MkdirAll(filepath.Dir(path), dirPerms); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal cache record: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".m_*.tmp")
	if err != nil {
		return fmt.Errorf("create temp record: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp record: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename temp record: %w", err)
	}
	return nil
}

// Delete removes the sidecar for key.
func (x *FileIndex) Delete(_ context.Context, zone, section, key string) error {
	if err := os.Remove(x.path(zone, section, key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete cache record: %w", err)
	}
	return nil
}

// DeleteZone removes every sidecar of zone.
func (x *FileIndex) DeleteZone(_ context.Context, zone string) error {
	dir := filepath.Join(x.root, zone)
	sections, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("list cache sections: %w", err)
	}

	for _, section := range sections {
		if !section.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(dir, section.Name()))
		if err != nil {
			return fmt.Errorf("list cache records: %w", err)
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.HasPrefix(name, "m_") || !strings.HasSuffix(name, ".json") {
				continue
			}
			if err := os.Remove(filepath.Join(dir, section.Name(), name)); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("delete cache record: %w", err)
			}
		}
	}
	return nil
}
