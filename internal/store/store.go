// Package store provides the persistence gateway: versioned JSON
// documents addressed by (collection, key), with optimistic-concurrency
// upserts so concurrent writers to the same document serialize instead
// of clobbering each other.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound indicates no document exists at (collection, key).
	ErrNotFound = errors.New("document not found")
	// ErrVersionConflict indicates the expected version did not match
	// the stored version; the caller must reread and retry.
	ErrVersionConflict = errors.New("document version conflict")
)

// AnyVersion disables the version check on an upsert, giving plain
// create-or-overwrite semantics.
const AnyVersion int64 = -1

// Document is one stored JSON document plus its version metadata.
// Versions start at 1 and increment on every committed write.
type Document struct {
	// Collection is the document collection.
	Collection string
	// Key is the document key within its collection.
	Key string
	// Data is the JSON document body.
	Data json.RawMessage
	// Version is the current document version.
	Version int64
	// UpdatedAt is when the document was last written.
	UpdatedAt time.Time
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	if err := json.Unmarshal(d.Data, v); err != nil {
		return fmt.Errorf("decode %s/%s: %w", d.Collection, d.Key, err)
	}
	return nil
}

// Filter narrows a Query. The zero value matches every document in the
// collection.
type Filter struct {
	// KeyPrefix, when set, matches only keys with this prefix.
	KeyPrefix string
}

// Gateway is the storage boundary the persister workers and the graph
// coordinator's pre-read depend on.
type Gateway interface {
	// Get returns the document at (collection, key), or ErrNotFound.
	Get(ctx context.Context, collection, key string) (Document, error)
	// Upsert writes a document. When expectedVersion is AnyVersion the
	// write always applies; when it is 0 the document must not exist;
	// otherwise the stored version must match or ErrVersionConflict is
	// returned. Returns the version after the write.
	Upsert(ctx context.Context, collection, key string, data json.RawMessage, expectedVersion int64) (int64, error)
	// Query returns documents in a collection ordered by key, honoring
	// the filter, limit (0 = unlimited), and offset.
	Query(ctx context.Context, collection string, f Filter, limit, offset int) ([]Document, error)
	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error
	// Close releases the underlying store.
	Close() error
}

// Collection layout produced by this core, consumed externally for display.
const (
	// UsersCollection holds per-user profile documents keyed by user id.
	UsersCollection = "users"
	// GraphsCollection holds per-user knowledge graphs keyed by user id.
	GraphsCollection = "knowledgeGraphs"
)

// PlansCollection returns the per-user lesson-plan collection, keyed by
// plan id: users/{user_id}/lessonPlans.
func PlansCollection(userID string) string {
	return fmt.Sprintf("%s/%s/lessonPlans", UsersCollection, userID)
}
