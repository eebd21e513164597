package sweepsdk_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"

	"sweep/internal/experiment"
	"sweep/internal/server"
	"sweep/internal/space"
	"sweep/internal/store"
	sweepsdk "sweep/sdk/go"
)

func newTestClient(t *testing.T) *sweepsdk.Client {
	t.Helper()
	s := space.New()
	lr, err := space.NewContinuous("uniform", 0, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Add("lr", lr); err != nil {
		t.Fatal(err)
	}
	seed := uint64(7)
	e, err := experiment.New(context.Background(), store.NewMemory(), s, experiment.Config{
		Key: "exp", Direction: "minimize", Seed: &seed,
	})
	if err != nil {
		t.Fatal(err)
	}
	handler, err := server.New(server.Config{Experiment: e})
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return sweepsdk.New(srv.URL, "exp")
}

func TestClientLifecycle(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	exp, err := c.Experiment(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if exp.Key != "exp" || exp.Seed != 7 {
		t.Fatalf("experiment: %+v", exp)
	}

	tr, err := c.Suggest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if tr.State != "pending" || tr.ID == "" {
		t.Fatalf("suggested trial: %+v", tr)
	}

	done, err := c.Complete(ctx, tr.ID, 0.3)
	if err != nil {
		t.Fatal(err)
	}
	if done.State != "complete" || done.Objective == nil || *done.Objective != 0.3 {
		t.Fatalf("completed trial: %+v", done)
	}

	best, err := c.Optimum(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if best.ID != tr.ID {
		t.Fatalf("optimum = %s, want %s", best.ID, tr.ID)
	}

	items, err := c.Trials(ctx, "complete")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 {
		t.Fatalf("got %d trials, want 1", len(items))
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	tr, err := c.Suggest(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Fail(ctx, tr.ID, "oom"); err != nil {
		t.Fatal(err)
	}
	_, err = c.Complete(ctx, tr.ID, 1.0)
	var apiErr *sweepsdk.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("got %v, want APIError", err)
	}
	if apiErr.StatusCode != 409 {
		t.Fatalf("status = %d, want 409", apiErr.StatusCode)
	}
}
