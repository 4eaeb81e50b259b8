package docstore

import (
	"context"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used in tests and as the degraded-mode
// fallback when no durable store is configured.
type MemoryStore struct {
	mu         sync.Mutex
	containers map[string]*memoryContainer
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{containers: make(map[string]*memoryContainer)}
}

// EnsureContainer opens or creates a named container.
func (s *MemoryStore) EnsureContainer(ctx context.Context, id, partitionField string, defaultTTL time.Duration) (Container, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.containers[id]; ok {
		return c, nil
	}
	c := &memoryContainer{
		partitionField: partitionField,
		defaultTTL:     defaultTTL,
		docs:           make(map[string]storedDoc),
	}
	s.containers[id] = c
	return c, nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close drops all containers.
func (s *MemoryStore) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.containers = make(map[string]*memoryContainer)
	return nil
}

type storedDoc struct {
	doc       Document
	partition string
	expiresAt time.Time // zero means no expiry
}

type memoryContainer struct {
	mu             sync.Mutex
	partitionField string
	defaultTTL     time.Duration
	docs           map[string]storedDoc
}

func (c *memoryContainer) key(id, partition string) string {
	return partition + "/" + id
}

func (c *memoryContainer) Upsert(ctx context.Context, doc Document) error {
	id, _ := doc["id"].(string)
	partition, _ := doc[c.partitionField].(string)

	var expiresAt time.Time
	if ttl := documentTTL(doc, c.defaultTTL); ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.docs[c.key(id, partition)] = storedDoc{doc: copyDoc(doc), partition: partition, expiresAt: expiresAt}
	return nil
}

func (c *memoryContainer) Read(ctx context.Context, id, partition string) (Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := c.key(id, partition)
	stored, ok := c.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !stored.expiresAt.IsZero() && time.Now().After(stored.expiresAt) {
		delete(c.docs, key)
		return nil, ErrNotFound
	}
	return copyDoc(stored.doc), nil
}

func (c *memoryContainer) Delete(ctx context.Context, id, partition string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.docs, c.key(id, partition))
	return nil
}

func (c *memoryContainer) Query(ctx context.Context, filter map[string]any, crossPartition bool) ([]Document, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	var out []Document
	for key, stored := range c.docs {
		if !stored.expiresAt.IsZero() && now.After(stored.expiresAt) {
			delete(c.docs, key)
			continue
		}
		if !crossPartition {
			if want, ok := filter[c.partitionField].(string); !ok || want != stored.partition {
				continue
			}
		}
		if matchesFilter(stored.doc, filter) {
			out = append(out, copyDoc(stored.doc))
		}
	}
	return out, nil
}

func matchesFilter(doc Document, filter map[string]any) bool {
	for k, want := range filter {
		// Dotted paths address nested fields, e.g. "metadata.status".
		got := lookupPath(doc, k)
		if got != want {
			return false
		}
	}
	return true
}

func lookupPath(doc Document, path string) any {
	parts := strings.Split(path, ".")
	var cur any = doc
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[p]
	}
	return cur
}

func copyDoc(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = copyDocValue(v)
	}
	return out
}

func copyDocValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyDoc(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyDocValue(e)
		}
		return out
	default:
		return v
	}
}

var _ Store = (*MemoryStore)(nil)
