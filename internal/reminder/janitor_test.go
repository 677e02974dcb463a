package reminder

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	logx "remindbot/pkg/logx"
)

type countingSweeper struct{ n atomic.Int32 }

func (c *countingSweeper) Sweep(ctx context.Context) (int64, error) {
	c.n.Add(1)
	return 0, nil
}

func TestValidateSchedule(t *testing.T) {
	for _, ok := range []string{"", "@every 10m", "0 */5 * * * *", "@hourly"} {
		if err := ValidateSchedule(ok); err != nil {
			t.Fatalf("%q: %v", ok, err)
		}
	}
	if err := ValidateSchedule("every ten minutes"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestJanitorRunsSweep(t *testing.T) {
	sw := &countingSweeper{}
	j := NewJanitor(sw, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := j.Start(ctx, "@every 1s", time.UTC); err != nil {
		t.Fatal(err)
	}
	defer j.Stop(context.Background())

	deadline := time.Now().Add(3 * time.Second)
	for sw.n.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if sw.n.Load() == 0 {
		t.Fatal("sweep never ran")
	}
}

func TestJanitorDisabled(t *testing.T) {
	sw := &countingSweeper{}
	j := NewJanitor(sw, logx.Nop())
	if err := j.Start(context.Background(), "", nil); err != nil {
		t.Fatal(err)
	}
	if !j.Next().IsZero() {
		t.Fatal("disabled janitor has a next run")
	}
	if err := j.Apply("bogus spec", time.UTC); err == nil {
		t.Fatal("Apply should reject a bad spec")
	}
	j.runOnce()
	if sw.n.Load() != 1 {
		t.Fatal("runOnce should sweep")
	}
}

// blockingSweeper holds every sweep until release is closed.
type blockingSweeper struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingSweeper) Sweep(ctx context.Context) (int64, error) {
	b.once.Do(func() { close(b.entered) })
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return 0, nil
}

func TestJanitorApplyDuringSweep(t *testing.T) {
	sw := &blockingSweeper{entered: make(chan struct{}), release: make(chan struct{})}
	j := NewJanitor(sw, logx.Nop())
	if err := j.Start(context.Background(), "@every 1s", time.UTC); err != nil {
		t.Fatal(err)
	}
	defer j.Stop(context.Background())
	defer close(sw.release)

	select {
	case <-sw.entered:
	case <-time.After(3 * time.Second):
		t.Fatal("sweep never started")
	}

	done := make(chan error, 1)
	go func() { done <- j.Apply("@every 2s", time.UTC) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Apply blocked behind a running sweep")
	}
	if j.Next().IsZero() {
		t.Fatal("rescheduled janitor has no next run")
	}
}

func TestJanitorTickWhileLocked(t *testing.T) {
	sw := &countingSweeper{}
	j := NewJanitor(sw, logx.Nop())
	if err := j.Start(context.Background(), "", nil); err != nil {
		t.Fatal(err)
	}

	j.mu.Lock()
	done := make(chan struct{})
	go func() {
		j.runOnce()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		j.mu.Unlock()
		t.Fatal("sweep tick waited on the janitor lock")
	}
	j.mu.Unlock()
	if sw.n.Load() != 1 {
		t.Fatalf("sweeps = %d, want 1", sw.n.Load())
	}
}
