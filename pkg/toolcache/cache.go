// Package toolcache provides the TTL-keyed cache fronting tool results.
//
// Entries are keyed by tool name plus a digest of the canonicalized call
// arguments, so equivalent calls from different components share entries.
// The cache never fails its caller: internal errors are logged and treated
// as misses.
package toolcache

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// contextKeys are argument keys stripped before key derivation. They carry
// per-caller context that must not affect result identity.
var contextKeys = map[string]bool{
	"context":  true,
	"ctx":      true,
	"_context": true,
}

// Entry is a cached tool result.
type Entry struct {
	Value     map[string]any
	CreatedAt time.Time
	ExpiresAt time.Time
	ToolName  string
	Profile   Profile
}

// Stats reports cache effectiveness counters.
type Stats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	MaxSize   int   `json:"max_size"`
}

// Cache is a bounded in-memory TTL cache of tool results.
type Cache struct {
	mu        sync.Mutex
	entries   map[string]*Entry
	maxSize   int
	hits      int64
	misses    int64
	evictions int64
}

// DefaultMaxEntries bounds the cache when no explicit size is given.
const DefaultMaxEntries = 500

// New creates a cache holding at most maxEntries entries.
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		entries: make(map[string]*Entry),
		maxSize: maxEntries,
	}
}

// Key derives the cache key for a tool call. The derivation is part of the
// cache's contract: tool + ":" + first 12 hex chars of the md5 of the
// canonical JSON of the arguments with context-like keys removed.
func Key(tool string, args map[string]any) string {
	canonical, err := canonicalJSON(args)
	if err != nil {
		slog.Debug("Cache key derivation failed, using empty args", "tool", tool, "error", err)
		canonical = []byte("{}")
	}
	sum := md5.Sum(canonical)
	return tool + ":" + hex.EncodeToString(sum[:])[:12]
}

// canonicalJSON marshals args with context-like keys stripped. encoding/json
// writes map keys in sorted order, which gives the stable canonical form.
func canonicalJSON(args map[string]any) ([]byte, error) {
	filtered := make(map[string]any, len(args))
	for k, v := range args {
		if contextKeys[k] {
			continue
		}
		filtered[k] = v
	}
	return json.Marshal(filtered)
}

// Get returns a copy of the cached value for a tool call, or nil on miss.
// Expired entries are removed on the way out.
func (c *Cache) Get(tool string, args map[string]any) map[string]any {
	if neverCache[tool] {
		return nil
	}

	key := Key(tool, args)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil
	}
	if time.Now().After(entry.ExpiresAt) {
		delete(c.entries, key)
		c.misses++
		return nil
	}

	c.hits++
	return copyValue(entry.Value)
}

// Set stores a tool result using the tool's TTL profile. Tools without a
// profile, and tools in the never-cache set, are silently skipped.
func (c *Cache) Set(tool string, args map[string]any, value map[string]any) {
	ttl, ok := ProfileTTL(tool)
	if !ok {
		return
	}
	profile, _ := ToolProfile(tool)

	key := Key(tool, args)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.maxSize {
		c.evictLocked(now)
	}

	c.entries[key] = &Entry{
		Value:     copyValue(value),
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		ToolName:  tool,
		Profile:   profile,
	}
}

// evictLocked frees space: first a lazy-expire pass, then the oldest 10% of
// entries by creation time. Caller holds c.mu.
func (c *Cache) evictLocked(now time.Time) {
	for key, entry := range c.entries {
		if now.After(entry.ExpiresAt) {
			delete(c.entries, key)
			c.evictions++
		}
	}
	if len(c.entries) < c.maxSize {
		return
	}

	type aged struct {
		key       string
		createdAt time.Time
	}
	ordered := make([]aged, 0, len(c.entries))
	for key, entry := range c.entries {
		ordered = append(ordered, aged{key, entry.CreatedAt})
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].createdAt.Before(ordered[j].createdAt)
	})

	drop := len(ordered) / 10
	if drop < 1 {
		drop = 1
	}
	for _, a := range ordered[:drop] {
		delete(c.entries, a.key)
		c.evictions++
	}
}

// Invalidate removes the entry for a specific call, or every entry for the
// tool when args is nil.
func (c *Cache) Invalidate(tool string, args map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if args != nil {
		delete(c.entries, Key(tool, args))
		return
	}
	for key, entry := range c.entries {
		if entry.ToolName == tool {
			delete(c.entries, key)
		}
	}
}

// InvalidateAll empties the cache.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*Entry)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Stats{
		Entries:   len(c.entries),
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		MaxSize:   c.maxSize,
	}
}

// copyValue deep-copies a result map so callers never alias cached state.
func copyValue(v map[string]any) map[string]any {
	if v == nil {
		return nil
	}
	out := make(map[string]any, len(v))
	for k, val := range v {
		out[k] = copyAny(val)
	}
	return out
}

func copyAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyValue(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyAny(e)
		}
		return out
	default:
		return v
	}
}
