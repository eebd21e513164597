package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"sweep/internal/trial"
)

func fixedNow() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

func seededMemory(t *testing.T) (*Memory, context.Context) {
	t.Helper()
	m := NewMemory()
	m.Now = fixedNow
	ctx := context.Background()
	if err := m.PutExperiment(ctx, Experiment{Key: "exp", Direction: trial.Minimize, Strategy: "random", Seed: 42, Fingerprint: "f"}); err != nil {
		t.Fatal(err)
	}
	return m, ctx
}

func pendingTrial(id string, second int) trial.Trial {
	return trial.Trial{
		ID:            id,
		ExperimentKey: "exp",
		Values:        map[string]any{"lr": 0.1},
		State:         trial.Pending,
		CreatedAt:     fmt.Sprintf("2026-01-01T00:00:%02dZ", second),
	}
}

func TestPutExperimentDuplicate(t *testing.T) {
	m, ctx := seededMemory(t)
	err := m.PutExperiment(ctx, Experiment{Key: "exp"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("got %v, want ErrDuplicate", err)
	}
}

func TestGetExperimentNotFound(t *testing.T) {
	m, ctx := seededMemory(t)
	if _, err := m.GetExperiment(ctx, "other"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestPutTrialDuplicate(t *testing.T) {
	m, ctx := seededMemory(t)
	if _, err := m.PutTrial(ctx, pendingTrial("t-1", 0)); err != nil {
		t.Fatal(err)
	}
	if _, err := m.PutTrial(ctx, pendingTrial("t-1", 1)); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("got %v, want ErrDuplicate", err)
	}
}

func TestUpdateTrialCompareAndSet(t *testing.T) {
	m, ctx := seededMemory(t)
	if _, err := m.PutTrial(ctx, pendingTrial("t-1", 0)); err != nil {
		t.Fatal(err)
	}
	obj := 1.5
	upd := Update{State: trial.Complete, Objective: &obj, CompletedAt: "2026-01-01T00:01:00Z"}
	if err := m.UpdateTrial(ctx, "t-1", trial.Pending, upd); err != nil {
		t.Fatalf("first finalize: %v", err)
	}
	// second finalize loses the race
	err := m.UpdateTrial(ctx, "t-1", trial.Pending, upd)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("got %v, want ErrConflict", err)
	}
	if err := m.UpdateTrial(ctx, "ghost", trial.Pending, upd); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	got, err := m.GetTrial(ctx, "t-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.State != trial.Complete || got.Objective == nil || *got.Objective != 1.5 {
		t.Fatalf("trial after finalize: %+v", got)
	}
}

func TestHistoryFilterAndOrder(t *testing.T) {
	m, ctx := seededMemory(t)
	for i, id := range []string{"t-a", "t-b", "t-c"} {
		if _, err := m.PutTrial(ctx, pendingTrial(id, i)); err != nil {
			t.Fatal(err)
		}
	}
	obj := 1.0
	// complete t-b first, then t-a; completion order should drive history
	if err := m.UpdateTrial(ctx, "t-b", trial.Pending, Update{State: trial.Complete, Objective: &obj, CompletedAt: "2026-01-01T00:02:00Z"}); err != nil {
		t.Fatal(err)
	}
	if err := m.UpdateTrial(ctx, "t-a", trial.Pending, Update{State: trial.Complete, Objective: &obj, CompletedAt: "2026-01-01T00:03:00Z"}); err != nil {
		t.Fatal(err)
	}
	completed, err := m.History(ctx, "exp", trial.Complete)
	if err != nil {
		t.Fatal(err)
	}
	if len(completed) != 2 || completed[0].ID != "t-b" || completed[1].ID != "t-a" {
		t.Fatalf("completed order: %+v", completed)
	}
	all, err := m.History(ctx, "exp")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d trials, want 3", len(all))
	}
}

func TestOptimumTieBreaksOnEarlierCompletion(t *testing.T) {
	m, ctx := seededMemory(t)
	objectives := []float64{5, 2, 9, 2}
	for i, o := range objectives {
		id := fmt.Sprintf("t-%d", i)
		if _, err := m.PutTrial(ctx, pendingTrial(id, i)); err != nil {
			t.Fatal(err)
		}
		obj := o
		completedAt := fmt.Sprintf("2026-01-01T00:01:%02dZ", i)
		if err := m.UpdateTrial(ctx, id, trial.Pending, Update{State: trial.Complete, Objective: &obj, CompletedAt: completedAt}); err != nil {
			t.Fatal(err)
		}
	}
	best, err := m.Optimum(ctx, "exp", trial.Minimize)
	if err != nil {
		t.Fatal(err)
	}
	// t-1 and t-3 tie at 2; t-1 completed earlier
	if best.ID != "t-1" {
		t.Fatalf("optimum = %s, want t-1", best.ID)
	}
	best, err = m.Optimum(ctx, "exp", trial.Maximize)
	if err != nil {
		t.Fatal(err)
	}
	if best.ID != "t-2" {
		t.Fatalf("maximize optimum = %s, want t-2", best.ID)
	}
}

func TestOptimumFullTieBreaksOnCreation(t *testing.T) {
	m, ctx := seededMemory(t)
	// t-z was created first but sorts after t-a by id; creation order must win.
	for i, id := range []string{"t-z", "t-a"} {
		if _, err := m.PutTrial(ctx, pendingTrial(id, i)); err != nil {
			t.Fatal(err)
		}
		obj := 1.0
		if err := m.UpdateTrial(ctx, id, trial.Pending, Update{State: trial.Complete, Objective: &obj, CompletedAt: "2026-01-01T00:01:00Z"}); err != nil {
			t.Fatal(err)
		}
	}
	best, err := m.Optimum(ctx, "exp", trial.Minimize)
	if err != nil {
		t.Fatal(err)
	}
	if best.ID != "t-z" {
		t.Fatalf("optimum = %s, want t-z", best.ID)
	}
}

func TestOptimumEmpty(t *testing.T) {
	m, ctx := seededMemory(t)
	if _, err := m.Optimum(ctx, "exp", trial.Minimize); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestGetTrialReturnsCopy(t *testing.T) {
	m, ctx := seededMemory(t)
	if _, err := m.PutTrial(ctx, pendingTrial("t-1", 0)); err != nil {
		t.Fatal(err)
	}
	got, err := m.GetTrial(ctx, "t-1")
	if err != nil {
		t.Fatal(err)
	}
	got.Values["lr"] = 999.0
	again, err := m.GetTrial(ctx, "t-1")
	if err != nil {
		t.Fatal(err)
	}
	if again.Values["lr"] != 0.1 {
		t.Fatal("stored trial mutated through returned copy")
	}
}
