package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sreflow/sreflow/pkg/docstore"
)

// ErrNotFound is returned when a workflow context does not exist (or has
// expired).
var ErrNotFound = errors.New("workflow context not found")

// DefaultTTL applies to contexts created without an explicit TTL.
const DefaultTTL = time.Hour

// PartitionField is the document field durable containers must be
// partitioned on. The store reads and writes with the workflow ID as the
// partition key, so a container opened on any other field never resolves
// its documents.
const PartitionField = "workflow_id"

// StoreStats reports store health and usage.
type StoreStats struct {
	CachedContexts int   `json:"cached_contexts"`
	Durable        bool  `json:"durable"`
	WriteFailures  int64 `json:"write_failures"`
}

// Store is the two-tier workflow context store.
type Store struct {
	mu        sync.RWMutex
	entries   map[string]*entry
	container docstore.Container

	writeFailures atomic.Int64
	degraded      atomic.Bool
}

type entry struct {
	mu       sync.Mutex
	ctx      *Context
	deadline time.Time
}

// NewStore creates a store over a durable container. A nil container starts
// the store in memory-only (degraded) mode.
func NewStore(container docstore.Container) *Store {
	s := &Store{
		entries:   make(map[string]*entry),
		container: container,
	}
	if container == nil {
		s.degraded.Store(true)
	}
	return s
}

// Create initializes a workflow context. A zero ttl selects DefaultTTL.
func (s *Store) Create(ctx context.Context, workflowID string, initialData map[string]any, ttl time.Duration) (*Context, error) {
	if workflowID == "" {
		return nil, fmt.Errorf("workflow id is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := time.Now()
	wc := &Context{
		ID:            workflowID,
		CreatedAt:     now,
		UpdatedAt:     now,
		TTLSeconds:    int(ttl.Seconds()),
		SharedData:    copyMap(initialData),
		AgentContexts: map[string]AgentContext{},
		Metadata:      Metadata{Status: StatusRunning},
	}
	if wc.SharedData == nil {
		wc.SharedData = map[string]any{}
	}

	s.persist(ctx, wc)

	s.mu.Lock()
	s.entries[workflowID] = &entry{ctx: wc, deadline: now.Add(ttl)}
	s.mu.Unlock()

	return wc.clone(), nil
}

// Get returns a copy of a workflow context, reading through to the durable
// store on memory miss.
func (s *Store) Get(ctx context.Context, workflowID string) (*Context, error) {
	if e := s.live(workflowID); e != nil {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.ctx.clone(), nil
	}

	if s.container == nil {
		return nil, ErrNotFound
	}

	doc, err := s.container.Read(ctx, workflowID, workflowID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		slog.Warn("Durable context read failed", "workflow_id", workflowID, "error", err)
		return nil, ErrNotFound
	}

	wc := fromDocument(doc)
	s.mu.Lock()
	s.entries[workflowID] = &entry{
		ctx:      wc,
		deadline: wc.CreatedAt.Add(time.Duration(wc.TTLSeconds) * time.Second),
	}
	s.mu.Unlock()

	return wc.clone(), nil
}

// Update applies a patch to a workflow context. Patch keys "shared_data"
// and "metadata" shallow-merge into the existing maps; any other key
// replaces the corresponding shared_data entry wholesale.
func (s *Store) Update(ctx context.Context, workflowID string, patch map[string]any) error {
	return s.mutate(ctx, workflowID, func(wc *Context) {
		for key, value := range patch {
			switch key {
			case "shared_data":
				if m, ok := value.(map[string]any); ok {
					for k, v := range m {
						wc.SharedData[k] = copyValue(v)
					}
				}
			case "metadata":
				if m, ok := value.(map[string]any); ok {
					if status, ok := m["status"].(string); ok {
						wc.Metadata.Status = status
					}
					if cs, ok := m["current_step"]; ok {
						wc.Metadata.CurrentStep = asInt(cs)
					}
					if ts, ok := m["total_steps"]; ok {
						wc.Metadata.TotalSteps = asInt(ts)
					}
				}
			default:
				wc.SharedData[key] = copyValue(value)
			}
		}
	})
}

// SetAgentContext replaces an agent's private sub-context.
func (s *Store) SetAgentContext(ctx context.Context, workflowID, agentID string, data map[string]any) error {
	return s.mutate(ctx, workflowID, func(wc *Context) {
		wc.AgentContexts[agentID] = AgentContext{
			UpdatedAt: time.Now(),
			Data:      copyMap(data),
		}
	})
}

// GetAgentContext returns an agent's private sub-context, or nil if the
// agent has not stored one.
func (s *Store) GetAgentContext(ctx context.Context, workflowID, agentID string) (map[string]any, error) {
	wc, err := s.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	ac, ok := wc.AgentContexts[agentID]
	if !ok {
		return nil, nil
	}
	return ac.Data, nil
}

// AddStepResult appends to the step log and advances current_step.
func (s *Store) AddStepResult(ctx context.Context, workflowID, stepID, agentID string, result map[string]any) error {
	return s.mutate(ctx, workflowID, func(wc *Context) {
		wc.StepResults = append(wc.StepResults, StepResult{
			StepID:    stepID,
			AgentID:   agentID,
			Timestamp: time.Now(),
			Result:    copyMap(result),
		})
		wc.Metadata.CurrentStep = len(wc.StepResults)
	})
}

// GetStepResults returns the step log in append order, optionally filtered
// by agent.
func (s *Store) GetStepResults(ctx context.Context, workflowID, agentID string) ([]StepResult, error) {
	wc, err := s.Get(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if agentID == "" {
		return wc.StepResults, nil
	}
	var out []StepResult
	for _, sr := range wc.StepResults {
		if sr.AgentID == agentID {
			out = append(out, sr)
		}
	}
	return out, nil
}

// Delete removes a workflow context from both tiers.
func (s *Store) Delete(ctx context.Context, workflowID string) error {
	s.mu.Lock()
	delete(s.entries, workflowID)
	s.mu.Unlock()

	if s.container != nil {
		if err := s.container.Delete(ctx, workflowID, workflowID); err != nil {
			slog.Warn("Durable context delete failed", "workflow_id", workflowID, "error", err)
		}
	}
	return nil
}

// Stats reports store usage and whether the durable tier is healthy.
func (s *Store) Stats() StoreStats {
	s.mu.RLock()
	cached := len(s.entries)
	s.mu.RUnlock()

	return StoreStats{
		CachedContexts: cached,
		Durable:        !s.degraded.Load(),
		WriteFailures:  s.writeFailures.Load(),
	}
}

// live returns the memory entry for a workflow if present and unexpired.
func (s *Store) live(workflowID string) *entry {
	s.mu.RLock()
	e, ok := s.entries[workflowID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	if time.Now().After(e.deadline) {
		s.mu.Lock()
		delete(s.entries, workflowID)
		s.mu.Unlock()
		return nil
	}
	return e
}

// mutate applies fn to a context under its entry lock, bumping updated_at
// and writing durable state before refreshing memory.
func (s *Store) mutate(ctx context.Context, workflowID string, fn func(*Context)) error {
	e := s.live(workflowID)
	if e == nil {
		// Fault the context in from the durable tier.
		if _, err := s.Get(ctx, workflowID); err != nil {
			return err
		}
		if e = s.live(workflowID); e == nil {
			return ErrNotFound
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	fn(e.ctx)
	e.ctx.UpdatedAt = time.Now()

	// Durable first: the memory copy must never be fresher than what a
	// restart would recover.
	s.persist(ctx, e.ctx)
	return nil
}

// persist writes a context to the durable tier. Storage failures degrade
// the store instead of failing the caller.
func (s *Store) persist(ctx context.Context, wc *Context) {
	if s.container == nil {
		return
	}
	if err := s.container.Upsert(ctx, wc.toDocument()); err != nil {
		s.writeFailures.Add(1)
		s.degraded.Store(true)
		slog.Warn("Durable context write failed, continuing memory-only",
			"workflow_id", wc.ID, "error", err)
		return
	}
	s.degraded.Store(false)
}
