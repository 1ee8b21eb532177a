// Package cache stores listing results and mirrored file content for a
// client, grouped by zone and section with a per-section time-to-live.
package cache

import (
	"context"
	"errors"
)

// Section names used by the mirror client.
const (
	SectionLists = "lists"
	SectionFiles = "files"
)

var (
	// ErrNotFound is returned by an Index when it holds no record for a key.
	ErrNotFound = errors.New("cache record not found")

	// ErrDisabled is returned when writing to a section whose TTL is negative.
	ErrDisabled = errors.New("caching disabled for section")

	// ErrNotReserved is returned by Commit when no pending reservation exists.
	ErrNotReserved = errors.New("no pending reservation")
)

// Gateway is the capability the mirror client needs from a cache backend.
//
// TTLs are in seconds. 0 never expires and a negative TTL disables the
// section. Reserve creates a pending entry whose blob may be written at the
// returned path; the entry only becomes visible to Get and Path after Commit.
type Gateway interface {
	Zone() string
	SetSectionTTL(section string, ttl int)
	SectionTTL(section string) int

	Get(ctx context.Context, section, key string) ([]byte, bool, error)
	Save(ctx context.Context, section, key string, value []byte) error
	Path(ctx context.Context, section, key string) (string, bool, error)

	Reserve(ctx context.Context, section, key string) (string, error)
	Commit(ctx context.Context, section, key string) error

	Clear(ctx context.Context, section, key string) error
	ClearZone(ctx context.Context) error
}
