// Package docstore defines the document store boundary used by the workflow
// context store, plus the in-memory and Mongo-backed implementations.
//
// Documents are partitioned maps with a string "id". TTL is enforced by the
// store itself (server-side for Mongo via a TTL index) so callers never see
// an expired document.
package docstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Read when no live document matches.
var ErrNotFound = errors.New("document not found")

// Document is a stored document. Implementations persist it as-is; the "id"
// key and the container's partition field must be set by the caller.
type Document = map[string]any

// expiresField carries the computed expiry deadline inside stored documents.
const expiresField = "_expires_at"

// Store provides named document containers.
type Store interface {
	// EnsureContainer opens (creating if needed) a container partitioned by
	// partitionField. defaultTTL applies to documents that do not carry
	// their own "ttl" value; zero means no expiry.
	EnsureContainer(ctx context.Context, id, partitionField string, defaultTTL time.Duration) (Container, error)

	// Ping verifies connectivity to the backing store.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close(ctx context.Context) error
}

// Container holds partitioned documents.
type Container interface {
	// Upsert inserts or replaces a document keyed by its "id".
	Upsert(ctx context.Context, doc Document) error

	// Read returns the document with the given id within a partition, or
	// ErrNotFound.
	Read(ctx context.Context, id, partition string) (Document, error)

	// Delete removes a document. Deleting an absent document is a no-op.
	Delete(ctx context.Context, id, partition string) error

	// Query returns documents matching a field-equality filter. With
	// crossPartition false the filter must include the partition field.
	Query(ctx context.Context, filter map[string]any, crossPartition bool) ([]Document, error)
}

// documentTTL resolves a document's lifetime: its own "ttl" (seconds) if
// present, else the container default.
func documentTTL(doc Document, defaultTTL time.Duration) time.Duration {
	switch v := doc["ttl"].(type) {
	case int:
		return time.Duration(v) * time.Second
	case int64:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v) * time.Second
	}
	return defaultTTL
}
