package reminder

import (
	"context"
	"testing"
	"time"

	"remindbot/internal/storage"
)

func TestScheduleDuplicateReplacesTimer(t *testing.T) {
	store := newMemStore()
	rec := &recorder{}
	clock := NewFakeClock(t0)
	s := NewScheduler(store, rec, SchedulerOptions{Clock: clock})
	ctx := context.Background()

	r := storage.Reminder{ID: 1, Owner: 1, Text: "x", RemindAt: t0.Add(time.Minute)}
	if err := s.Schedule(ctx, r); err != nil {
		t.Fatal(err)
	}
	r.RemindAt = t0.Add(2 * time.Minute)
	if err := s.Schedule(ctx, r); err != nil {
		t.Fatal(err)
	}
	if got := s.Stats().Armed; got != 1 {
		t.Fatalf("armed = %d, want 1", got)
	}
	clock.Advance(time.Minute)
	if len(rec.calls()) != 0 {
		t.Fatal("stale timer fired")
	}
	clock.Advance(time.Minute)
	if len(rec.calls()) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(rec.calls()))
	}
}

func TestScheduleDueReminderIsDropped(t *testing.T) {
	store := newMemStore()
	rec := &recorder{}
	clock := NewFakeClock(t0)
	s := NewScheduler(store, rec, SchedulerOptions{Clock: clock})
	ctx := context.Background()

	id, _ := store.Insert(ctx, storage.Reminder{Owner: 1, Text: "x", RemindAt: t0})
	r := storage.Reminder{ID: id, Owner: 1, Text: "x", RemindAt: t0}
	if err := s.Schedule(ctx, r); err != nil {
		t.Fatal(err)
	}
	if store.has(id) || clock.Pending() != 0 {
		t.Fatal("due reminder should be deleted without a timer")
	}
	if s.Stats().Expired != 1 {
		t.Fatal("expired counter not bumped")
	}
}

func TestDisarmChecksOwner(t *testing.T) {
	clock := NewFakeClock(t0)
	s := NewScheduler(newMemStore(), &recorder{}, SchedulerOptions{Clock: clock})
	_ = s.Schedule(context.Background(), storage.Reminder{ID: 3, Owner: 1, RemindAt: t0.Add(time.Second)})

	if _, ok := s.Disarm(3, 2); ok {
		t.Fatal("foreign disarm succeeded")
	}
	r, ok := s.Disarm(3, 1)
	if !ok || r.ID != 3 {
		t.Fatalf("disarm = %+v, %v", r, ok)
	}
	if s.Cancel(3) {
		t.Fatal("second disarm succeeded")
	}
}

func TestSchedulerRealClock(t *testing.T) {
	store := newMemStore()
	done := make(chan storage.Reminder, 1)
	s := NewScheduler(store, DelivererFunc(func(ctx context.Context, r storage.Reminder) error {
		done <- r
		return nil
	}), SchedulerOptions{})
	ctx := context.Background()

	id, _ := store.Insert(ctx, storage.Reminder{Owner: 1, Text: "x", RemindAt: time.Now().Add(20 * time.Millisecond)})
	rs, _ := store.ListPendingAsOf(ctx, time.Now())
	if err := s.Schedule(ctx, rs[0]); err != nil {
		t.Fatal(err)
	}
	select {
	case r := <-done:
		if r.ID != id {
			t.Fatalf("delivered id %d", r.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timer never fired")
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	if store.has(id) {
		t.Fatal("record should be deleted")
	}
}

func TestScheduleAfterStop(t *testing.T) {
	clock := NewFakeClock(t0)
	s := NewScheduler(newMemStore(), &recorder{}, SchedulerOptions{Clock: clock})
	_ = s.Stop(context.Background())
	if err := s.Schedule(context.Background(), storage.Reminder{ID: 1, RemindAt: t0.Add(time.Second)}); err != ErrStopped {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}
