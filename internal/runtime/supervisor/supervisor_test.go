package supervisor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestGoCancelOnError(t *testing.T) {
	sup := NewSupervisor(context.Background(), WithCancelOnError(true))
	sup.Go("boom", func(ctx context.Context) error { return errors.New("boom") })
	sup.Go0("waiter", func(ctx context.Context) { <-ctx.Done() })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := sup.Wait(ctx)
	if err == nil || err.Error() != "boom: boom" {
		t.Fatalf("Wait error = %v, want boom: boom", err)
	}
}

func TestGoRecoversPanic(t *testing.T) {
	sup := NewSupervisor(context.Background())
	sup.Go0("panicky", func(ctx context.Context) { panic("oops") })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Wait(ctx); err == nil {
		t.Fatal("expected panic to surface as supervisor error")
	}
	snap := sup.Snapshot()
	var found bool
	for _, g := range snap.Goroutines {
		if g.Name == "panicky" {
			found = true
			if g.Panics != 1 {
				t.Fatalf("panics = %d, want 1", g.Panics)
			}
		}
	}
	if !found {
		t.Fatal("panicky goroutine missing from snapshot")
	}
}

func TestGoRestartRestartsUntilSuccess(t *testing.T) {
	sup := NewSupervisor(context.Background())
	var runs int32
	sup.GoRestart("flaky", func(ctx context.Context) error {
		if atomic.AddInt32(&runs, 1) < 3 {
			return errors.New("not yet")
		}
		return nil
	}, WithRestartBackoff(time.Millisecond, 5*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := sup.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got := atomic.LoadInt32(&runs); got != 3 {
		t.Fatalf("runs = %d, want 3", got)
	}
}

func TestRegistrySnapshots(t *testing.T) {
	r := NewRegistry()
	sup := NewSupervisor(context.Background())
	r.Set("a", sup)
	if len(r.Snapshots()) != 1 {
		t.Fatal("expected one snapshot")
	}
	r.Delete("a")
	if len(r.Snapshots()) != 0 {
		t.Fatal("expected registry to be empty")
	}
}
