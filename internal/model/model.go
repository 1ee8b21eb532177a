package model

// Entry is one child of a directory listing.
type Entry struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	IsDirectory bool   `json:"isDirectory"`
}

// CacheRecord describes one cached value in a zone section.
type CacheRecord struct {
	Zone      string `json:"zone" dynamodbav:"zone"`
	Section   string `json:"section" dynamodbav:"section"`
	Key       string `json:"key" dynamodbav:"key"`
	Pending   bool   `json:"pending,omitempty" dynamodbav:"pending"`
	StoredAt  int64  `json:"stored_at" dynamodbav:"stored_at"`
	ExpiresAt int64  `json:"expires_at,omitempty" dynamodbav:"ttl,omitempty"` // Unix seconds, 0 never expires
}

// Expired reports whether the record has expired at now (Unix seconds).
func (r CacheRecord) Expired(now int64) bool {
	return r.ExpiresAt != 0 && now >= r.ExpiresAt
}
