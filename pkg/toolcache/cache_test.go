package toolcache

import (
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestKeyDerivation(t *testing.T) {
	tests := []struct {
		name string
		a    map[string]any
		b    map[string]any
		same bool
	}{
		{
			name: "identical args",
			a:    map[string]any{"resource_group": "prod-rg", "name": "my-app"},
			b:    map[string]any{"name": "my-app", "resource_group": "prod-rg"},
			same: true,
		},
		{
			name: "context keys stripped",
			a:    map[string]any{"name": "my-app", "context": map[string]any{"caller": "x"}},
			b:    map[string]any{"name": "my-app", "_context": "other", "ctx": 1},
			same: true,
		},
		{
			name: "different args",
			a:    map[string]any{"name": "my-app"},
			b:    map[string]any{"name": "other-app"},
			same: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka := Key("list_container_apps", tt.a)
			kb := Key("list_container_apps", tt.b)
			if (ka == kb) != tt.same {
				t.Errorf("Key(a)=%s Key(b)=%s, want same=%v", ka, kb, tt.same)
			}
		})
	}
}

func TestKeyFormat(t *testing.T) {
	key := Key("get_cost_analysis", map[string]any{"scope": "/subscriptions/abc"})
	parts := strings.SplitN(key, ":", 2)
	if parts[0] != "get_cost_analysis" {
		t.Errorf("key prefix = %s, want tool name", parts[0])
	}
	if len(parts[1]) != 12 {
		t.Errorf("digest length = %d, want 12", len(parts[1]))
	}
}

func TestCacheRoundTrip(t *testing.T) {
	c := New(10)
	args := map[string]any{"resource_group": "prod-rg"}
	value := map[string]any{"apps": []any{"a1", "a2"}}

	c.Set("list_container_apps", args, value)

	got := c.Get("list_container_apps", args)
	if got == nil {
		t.Fatal("expected cache hit")
	}
	if len(got["apps"].([]any)) != 2 {
		t.Errorf("unexpected cached value: %v", got)
	}

	// Returned value is a copy, mutations must not leak back.
	got["apps"] = nil
	again := c.Get("list_container_apps", args)
	if again["apps"] == nil {
		t.Error("cache returned aliased value")
	}
}

func TestCacheUnknownToolNotCached(t *testing.T) {
	c := New(10)
	c.Set("some_unknown_tool", nil, map[string]any{"x": 1})
	if got := c.Get("some_unknown_tool", nil); got != nil {
		t.Errorf("unknown tool should not be cached, got %v", got)
	}
}

func TestCacheNeverCacheTools(t *testing.T) {
	c := New(10)
	c.Set("restart_container_app", nil, map[string]any{"ok": true})
	if got := c.Get("restart_container_app", nil); got != nil {
		t.Errorf("never-cache tool returned %v", got)
	}
}

func TestCacheExpiry(t *testing.T) {
	c := New(10)
	args := map[string]any{"name": "my-app"}
	c.Set("check_container_app_health", args, map[string]any{"state": "Available"})

	// Force the entry past its deadline.
	c.mu.Lock()
	for _, e := range c.entries {
		e.ExpiresAt = time.Now().Add(-time.Second)
	}
	c.mu.Unlock()

	if got := c.Get("check_container_app_health", args); got != nil {
		t.Errorf("expired entry returned: %v", got)
	}
	stats := c.Stats()
	if stats.Entries != 0 {
		t.Errorf("expired entry not removed, entries=%d", stats.Entries)
	}
}

func TestCacheEviction(t *testing.T) {
	c := New(20)
	for i := 0; i < 20; i++ {
		c.Set("list_container_apps", map[string]any{"i": i}, map[string]any{"n": i})
		time.Sleep(time.Millisecond)
	}

	// At capacity, the next Set drops the oldest 10%.
	c.Set("list_container_apps", map[string]any{"i": 99}, map[string]any{"n": 99})

	stats := c.Stats()
	if stats.Entries > 20 {
		t.Errorf("cache exceeded capacity: %d", stats.Entries)
	}
	if stats.Evictions < 1 {
		t.Error("expected at least one eviction")
	}
	if got := c.Get("list_container_apps", map[string]any{"i": 0}); got != nil {
		t.Error("oldest entry should have been evicted")
	}
	if got := c.Get("list_container_apps", map[string]any{"i": 99}); got == nil {
		t.Error("newest entry should survive eviction")
	}
}

func TestCacheInvalidate(t *testing.T) {
	c := New(10)
	a1 := map[string]any{"name": "a1"}
	a2 := map[string]any{"name": "a2"}
	c.Set("list_container_apps", a1, map[string]any{"v": 1})
	c.Set("list_container_apps", a2, map[string]any{"v": 2})
	c.Set("list_virtual_machines", nil, map[string]any{"v": 3})

	c.Invalidate("list_container_apps", a1)
	if c.Get("list_container_apps", a1) != nil {
		t.Error("invalidated entry still present")
	}
	if c.Get("list_container_apps", a2) == nil {
		t.Error("sibling entry should survive targeted invalidation")
	}

	c.Invalidate("list_container_apps", nil)
	if c.Get("list_container_apps", a2) != nil {
		t.Error("tool-wide invalidation left an entry")
	}
	if c.Get("list_virtual_machines", nil) == nil {
		t.Error("other tool's entry should survive")
	}

	c.InvalidateAll()
	if c.Stats().Entries != 0 {
		t.Error("InvalidateAll left entries")
	}
}

func TestCacheStats(t *testing.T) {
	c := New(10)
	args := map[string]any{"name": "x"}

	c.Get("list_container_apps", args)
	c.Set("list_container_apps", args, map[string]any{"v": 1})
	c.Get("list_container_apps", args)

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit / 1 miss", stats)
	}
}

func TestProfileTTLs(t *testing.T) {
	tests := []struct {
		tool string
		want time.Duration
	}{
		{"check_container_app_health", 60 * time.Second},
		{"get_container_app_metrics", 5 * time.Minute},
		{"list_container_apps", 30 * time.Minute},
		{"get_cost_analysis", time.Hour},
		{"get_resource_inventory", 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			ttl, ok := ProfileTTL(tt.tool)
			if !ok {
				t.Fatalf("%s should be cacheable", tt.tool)
			}
			if ttl != tt.want {
				t.Errorf("ttl = %v, want %v", ttl, tt.want)
			}
		})
	}

	if _, ok := ProfileTTL("restart_container_app"); ok {
		t.Error("never-cache tool reported cacheable")
	}
}

func BenchmarkKey(b *testing.B) {
	args := map[string]any{"resource_group": "prod-rg", "name": "my-app", "limit": 10}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Key(fmt.Sprintf("tool_%d", i%8), args)
	}
}
