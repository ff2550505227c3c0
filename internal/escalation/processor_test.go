package escalation

import (
	"context"
	"testing"
	"time"

	"github.com/skyhangar/flightline/internal/engine"
	"github.com/skyhangar/flightline/internal/template"
	"github.com/skyhangar/flightline/model"
)

func testRegistry() *template.Registry {
	return template.NewRegistry([]model.WorkflowTemplate{
		{
			ID:                "maintenance.standard",
			Name:              "Standard Maintenance Approval",
			Version:           "1.0.0",
			StageSequence:     []string{"engineering", "quality", "operations"},
			MinApprovals:      1,
			EscalationTimeout: "72h",
		},
		{
			ID:            "maintenance.patient",
			Name:          "No Escalation",
			Version:       "1.0.0",
			StageSequence: []string{"engineering"},
			MinApprovals:  1,
		},
	})
}

func newTestProcessor(t *testing.T) (*Processor, *engine.MemoryStateStore, *engine.Engine) {
	t.Helper()

	registry := testRegistry()
	store := engine.NewMemoryStateStore()
	eng := engine.NewEngine(store, registry)
	proc := NewProcessor(eng, store, registry, time.Minute, nil, nil)
	return proc, store, eng
}

func seedItem(t *testing.T, store *engine.MemoryStateStore, id, templateID string, age time.Duration) {
	t.Helper()

	then := time.Now().UTC().Add(-age)
	err := store.Create(context.Background(), model.WorkItem{
		ID:         id,
		Title:      "Inspect hydraulic line",
		TemplateID: templateID,
		CreatedBy:  "tech-1",
		State: model.WorkflowState{
			CurrentStep: 0,
			Status:      model.StatusActive,
		},
		CreatedAt: then,
		UpdatedAt: then,
		Version:   1,
	})
	if err != nil {
		t.Fatalf("seed %s: %v", id, err)
	}
}

func TestProcessOnce_cancelsStaleItems(t *testing.T) {
	proc, store, _ := newTestProcessor(t)
	seedItem(t, store, "item-stale", "maintenance.standard", 80*time.Hour)
	seedItem(t, store, "item-fresh", "maintenance.standard", 1*time.Hour)

	n, err := proc.ProcessOnce(context.Background())
	if err != nil {
		t.Fatalf("ProcessOnce: %v", err)
	}
	if n != 1 {
		t.Errorf("escalated = %d, want 1", n)
	}

	stale, err := store.Load(context.Background(), "item-stale")
	if err != nil {
		t.Fatalf("load stale: %v", err)
	}
	if stale.State.Status != model.StatusCancelled {
		t.Errorf("stale status = %q, want cancelled", stale.State.Status)
	}
	if len(stale.State.History) != 1 {
		t.Fatalf("stale history = %d, want 1", len(stale.State.History))
	}
	rec := stale.State.History[0]
	if rec.Action != model.ActionCancelled || rec.Actor != SystemActor {
		t.Errorf("record = %+v, want system cancellation", rec)
	}
	if rec.Comment == "" {
		t.Error("escalation record has no comment")
	}

	fresh, err := store.Load(context.Background(), "item-fresh")
	if err != nil {
		t.Fatalf("load fresh: %v", err)
	}
	if fresh.State.Status != model.StatusActive {
		t.Errorf("fresh status = %q, want active", fresh.State.Status)
	}
}

func TestProcessOnce_skipsTemplatesWithoutTimeout(t *testing.T) {
	proc, store, _ := newTestProcessor(t)
	seedItem(t, store, "item-old", "maintenance.patient", 1000*time.Hour)

	n, err := proc.ProcessOnce(context.Background())
	if err != nil {
		t.Fatalf("ProcessOnce: %v", err)
	}
	if n != 0 {
		t.Errorf("escalated = %d, want 0", n)
	}

	item, _ := store.Load(context.Background(), "item-old")
	if item.State.Status != model.StatusActive {
		t.Errorf("status = %q, want active", item.State.Status)
	}
}

func TestProcessOnce_measuresFromLastTransition(t *testing.T) {
	proc, store, eng := newTestProcessor(t)
	seedItem(t, store, "item-1", "maintenance.standard", 80*time.Hour)

	// A recent approval resets the clock even though the item is old.
	if _, _, err := eng.Apply(context.Background(), "item-1", engine.Action{
		Kind:  model.RequestApprove,
		Actor: "alice",
	}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	n, err := proc.ProcessOnce(context.Background())
	if err != nil {
		t.Fatalf("ProcessOnce: %v", err)
	}
	if n != 0 {
		t.Errorf("escalated = %d, want 0 (activity is recent)", n)
	}
}

func TestProcessOnce_unknownTemplateIsSkipped(t *testing.T) {
	proc, store, _ := newTestProcessor(t)
	seedItem(t, store, "item-orphan", "maintenance.retired", 1000*time.Hour)

	n, err := proc.ProcessOnce(context.Background())
	if err != nil {
		t.Fatalf("ProcessOnce: %v", err)
	}
	if n != 0 {
		t.Errorf("escalated = %d, want 0", n)
	}
}

func TestRun_stopsOnContextCancel(t *testing.T) {
	proc, _, _ := newTestProcessor(t)
	proc.interval = 5 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		proc.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after context cancel")
	}
}
