package workflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sreflow/sreflow/pkg/docstore"
)

func newTestStore(t *testing.T) (*Store, docstore.Container) {
	t.Helper()
	mem := docstore.NewMemoryStore()
	container, err := mem.EnsureContainer(context.Background(), "workflow_contexts", "workflow_id", time.Hour)
	if err != nil {
		t.Fatalf("EnsureContainer: %v", err)
	}
	return NewStore(container), container
}

func TestStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	created, err := store.Create(ctx, "wf-1", map[string]any{"query": "check health"}, 0)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.Metadata.Status != StatusRunning {
		t.Errorf("status = %s, want running", created.Metadata.Status)
	}
	if created.TTLSeconds != int(DefaultTTL.Seconds()) {
		t.Errorf("ttl = %d, want default", created.TTLSeconds)
	}

	got, err := store.Get(ctx, "wf-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.SharedData["query"] != "check health" {
		t.Errorf("shared_data = %v", got.SharedData)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreReadThrough(t *testing.T) {
	ctx := context.Background()
	store, container := newTestStore(t)

	if _, err := store.Create(ctx, "wf-2", map[string]any{"k": "v"}, time.Hour); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// A fresh store over the same container must recover the context from
	// the durable tier.
	fresh := NewStore(container)
	got, err := fresh.Get(ctx, "wf-2")
	if err != nil {
		t.Fatalf("read-through Get: %v", err)
	}
	if got.SharedData["k"] != "v" {
		t.Errorf("recovered shared_data = %v", got.SharedData)
	}
}

func TestStoreUpdateMergeSemantics(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	store.Create(ctx, "wf-3", map[string]any{"a": 1}, 0)

	err := store.Update(ctx, "wf-3", map[string]any{
		"shared_data": map[string]any{"b": 2},
		"metadata":    map[string]any{"status": StatusCompleted},
		"plan":        []any{"step1"},
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, _ := store.Get(ctx, "wf-3")
	if got.SharedData["a"] != 1 || got.SharedData["b"] != 2 {
		t.Errorf("shared_data merge broken: %v", got.SharedData)
	}
	if got.Metadata.Status != StatusCompleted {
		t.Errorf("metadata merge broken: %+v", got.Metadata)
	}
	if _, ok := got.SharedData["plan"]; !ok {
		t.Error("unknown patch key should land in shared_data")
	}
	if !got.UpdatedAt.After(got.CreatedAt) {
		t.Error("updated_at should advance on update")
	}
}

func TestStoreStepResults(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	store.Create(ctx, "wf-4", nil, 0)

	for i := 0; i < 3; i++ {
		agent := "agent-a"
		if i == 1 {
			agent = "agent-b"
		}
		err := store.AddStepResult(ctx, "wf-4", fmt.Sprintf("step-%d", i), agent, map[string]any{"i": i})
		if err != nil {
			t.Fatalf("AddStepResult: %v", err)
		}
	}

	got, _ := store.Get(ctx, "wf-4")
	if got.Metadata.CurrentStep != len(got.StepResults) {
		t.Errorf("current_step=%d, len(step_results)=%d", got.Metadata.CurrentStep, len(got.StepResults))
	}

	all, err := store.GetStepResults(ctx, "wf-4", "")
	if err != nil {
		t.Fatalf("GetStepResults: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d steps, want 3", len(all))
	}
	for i, sr := range all {
		if sr.StepID != fmt.Sprintf("step-%d", i) {
			t.Errorf("step order broken at %d: %s", i, sr.StepID)
		}
	}

	byAgent, _ := store.GetStepResults(ctx, "wf-4", "agent-b")
	if len(byAgent) != 1 || byAgent[0].StepID != "step-1" {
		t.Errorf("agent filter broken: %+v", byAgent)
	}
}

func TestStoreAgentContexts(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)
	store.Create(ctx, "wf-5", nil, 0)

	if err := store.SetAgentContext(ctx, "wf-5", "health-agent", map[string]any{"checked": 3}); err != nil {
		t.Fatalf("SetAgentContext: %v", err)
	}

	data, err := store.GetAgentContext(ctx, "wf-5", "health-agent")
	if err != nil {
		t.Fatalf("GetAgentContext: %v", err)
	}
	if data["checked"] != 3 {
		t.Errorf("agent context = %v", data)
	}

	none, err := store.GetAgentContext(ctx, "wf-5", "other-agent")
	if err != nil || none != nil {
		t.Errorf("absent agent context should be nil, got %v err %v", none, err)
	}
}

func TestStoreDelete(t *testing.T) {
	ctx := context.Background()
	store, container := newTestStore(t)
	store.Create(ctx, "wf-6", nil, 0)

	if err := store.Delete(ctx, "wf-6"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "wf-6"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := container.Read(ctx, "wf-6", "wf-6"); !errors.Is(err, docstore.ErrNotFound) {
		t.Error("durable copy should be deleted too")
	}
}

func TestStoreDegradedMode(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)

	// Writes must not fail without a durable tier.
	if _, err := store.Create(ctx, "wf-7", map[string]any{"q": 1}, 0); err != nil {
		t.Fatalf("Create without durable tier: %v", err)
	}
	if err := store.AddStepResult(ctx, "wf-7", "s1", "a1", nil); err != nil {
		t.Fatalf("AddStepResult without durable tier: %v", err)
	}

	stats := store.Stats()
	if stats.Durable {
		t.Error("memory-only store should report durable=false")
	}
	if stats.CachedContexts != 1 {
		t.Errorf("cached contexts = %d, want 1", stats.CachedContexts)
	}
}
