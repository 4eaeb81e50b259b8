package inventory

import (
	"strings"
	"sync"
	"time"
)

// Resource is one inventory entry.
type Resource struct {
	ID            string            `json:"id"`
	Type          string            `json:"type"`
	Name          string            `json:"name"`
	ResourceGroup string            `json:"resource_group"`
	Location      string            `json:"location,omitempty"`
	Tags          map[string]string `json:"tags,omitempty"`
}

// MemorySnapshot is an in-memory Snapshot, loaded at startup or refreshed
// periodically by an external collector.
type MemorySnapshot struct {
	mu        sync.RWMutex
	resources []Resource
	loadedAt  time.Time
}

// NewMemorySnapshot creates an empty snapshot.
func NewMemorySnapshot() *MemorySnapshot {
	return &MemorySnapshot{}
}

// Load replaces the snapshot contents.
func (s *MemorySnapshot) Load(resources []Resource) {
	s.mu.Lock()
	s.resources = append([]Resource(nil), resources...)
	s.loadedAt = time.Now()
	s.mu.Unlock()
}

// Add appends one resource.
func (s *MemorySnapshot) Add(r Resource) {
	s.mu.Lock()
	s.resources = append(s.resources, r)
	s.mu.Unlock()
}

// HasResource matches by resource ID first, then by (type, group, name).
// Name and group comparisons are case-insensitive.
func (s *MemorySnapshot) HasResource(ref *ResourceRef, resourceID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.resources {
		r := &s.resources[i]
		if resourceID != "" && strings.EqualFold(r.ID, resourceID) {
			return true
		}
		if ref != nil &&
			r.Type == ref.Type &&
			strings.EqualFold(r.Name, ref.Name) &&
			(ref.ResourceGroup == "" || strings.EqualFold(r.ResourceGroup, ref.ResourceGroup)) {
			return true
		}
	}
	return false
}

// EnrichParameters fills resource_id and resource_group from the inventory
// when the tool's name parameter matches a known resource.
func (s *MemorySnapshot) EnrichParameters(tool string, params map[string]any, ctx map[string]any) map[string]any {
	scoped, ok := resourceScopedTools[tool]
	if !ok {
		return params
	}
	name, _ := params[scoped.nameParam].(string)
	if name == "" {
		return params
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.resources {
		r := &s.resources[i]
		if r.Type != scoped.resourceType || !strings.EqualFold(r.Name, name) {
			continue
		}
		if rg, _ := params["resource_group"].(string); rg != "" && !strings.EqualFold(r.ResourceGroup, rg) {
			continue
		}
		out := make(map[string]any, len(params)+2)
		for k, v := range params {
			out[k] = v
		}
		if _, ok := out["resource_id"]; !ok && r.ID != "" {
			out["resource_id"] = r.ID
		}
		if _, ok := out["resource_group"]; !ok && r.ResourceGroup != "" {
			out["resource_group"] = r.ResourceGroup
		}
		return out
	}
	return params
}

// ListByType returns the resources of a type, optionally filtered by group.
func (s *MemorySnapshot) ListByType(resourceType, resourceGroup string) []Resource {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Resource
	for _, r := range s.resources {
		if r.Type != resourceType {
			continue
		}
		if resourceGroup != "" && !strings.EqualFold(r.ResourceGroup, resourceGroup) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Statistics summarizes snapshot contents by type.
func (s *MemorySnapshot) Statistics() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byType := make(map[string]int)
	for _, r := range s.resources {
		byType[r.Type]++
	}
	return map[string]any{
		"total_resources": len(s.resources),
		"by_type":         byType,
		"loaded_at":       s.loadedAt,
	}
}
