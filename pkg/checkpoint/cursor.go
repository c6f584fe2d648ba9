// Package checkpoint persists export progress in Redis so interrupted runs
// can resume from their last continuation key instead of starting over.
package checkpoint

import (
	"time"
)

// Redis key layout for stored checkpoints.
const (
	// KeyPrefix namespaces every checkpoint key.
	KeyPrefix = "gwadmin:checkpoint:"

	// DefaultTTL is how long an untouched checkpoint survives. Exports
	// resumed within the window continue; anything older starts fresh.
	DefaultTTL = 7 * 24 * time.Hour
)

// Cursor is the durable progress of one export. Seeding a query with
// SortKey resumes strictly after the last emitted document.
type Cursor struct {
	// SortKey is the last emitted document's sort tuple. Numeric values
	// come back from Redis as float64; the search body accepts both.
	SortKey []any `json:"sort_key"`

	// Documents counts the documents emitted so far, across every run
	// that contributed to this checkpoint.
	Documents int64 `json:"documents"`

	// RunID identifies the run that last wrote the checkpoint.
	RunID string `json:"run_id"`

	// UpdatedAt is when the checkpoint was last written.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsStale reports whether the checkpoint is older than maxAge. Callers
// resuming from a stale cursor usually want to warn the operator first.
func (c *Cursor) IsStale(maxAge time.Duration) bool {
	return time.Since(c.UpdatedAt) > maxAge
}
