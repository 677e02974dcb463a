package reminder

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

// Limits are the live-reloadable knobs of the Service.
type Limits struct {
	// MaxPerOwner caps pending reminders per owner; 0 means unlimited.
	MaxPerOwner     int
	DeliveryTimeout time.Duration
	// SweepGrace is how far in the past a record must be before Sweep
	// removes it.
	SweepGrace time.Duration
}

type Options struct {
	Clock  Clock
	Bus    eventbus.Bus
	Log    logx.Logger
	Limits Limits
}

// Created is the result of a successful CreateReminder.
type Created struct {
	ID       int64
	Seconds  uint64
	RemindAt time.Time
}

// Pending is one entry of ListReminders.
type Pending struct {
	ID               int64
	Text             string
	SecondsRemaining int64
}

type CancelResult int

const (
	NotFound CancelResult = iota
	Cancelled
)

func (c CancelResult) String() string {
	if c == Cancelled {
		return "cancelled"
	}
	return "not_found"
}

// Service is the core boundary: transports call it, it coordinates the
// Store and the Scheduler.
type Service struct {
	store storage.Store
	sched *Scheduler
	clock Clock
	bus   eventbus.Bus
	log   logx.Logger

	limits  atomic.Pointer[Limits]
	started atomic.Bool

	// serializes count, insert and schedule per owner so MaxPerOwner holds
	// under concurrent creates
	owners ownerLocks
}

type ownerLock struct {
	sync.Mutex
	refs int
}

type ownerLocks struct {
	mu sync.Mutex
	m  map[int64]*ownerLock
}

func (l *ownerLocks) lock(owner int64) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = map[int64]*ownerLock{}
	}
	ol := l.m[owner]
	if ol == nil {
		ol = &ownerLock{}
		l.m[owner] = ol
	}
	ol.refs++
	l.mu.Unlock()

	ol.Lock()
	return func() {
		ol.Unlock()
		l.mu.Lock()
		if ol.refs--; ol.refs == 0 {
			delete(l.m, owner)
		}
		l.mu.Unlock()
	}
}

func NewService(store storage.Store, deliver Deliverer, opt Options) *Service {
	if opt.Clock == nil {
		opt.Clock = RealClock()
	}
	if opt.Log.IsZero() {
		opt.Log = logx.Nop()
	}
	s := &Service{
		store: store,
		clock: opt.Clock,
		bus:   opt.Bus,
		log:   opt.Log.With(logx.String("comp", "reminder")),
		sched: NewScheduler(store, deliver, SchedulerOptions{
			Clock:           opt.Clock,
			Bus:             opt.Bus,
			Log:             opt.Log,
			DeliveryTimeout: opt.Limits.DeliveryTimeout,
		}),
	}
	s.ApplyLimits(opt.Limits)
	return s
}

// ApplyLimits swaps the limits at runtime (config reload).
func (s *Service) ApplyLimits(l Limits) {
	if l.SweepGrace <= 0 {
		l.SweepGrace = time.Hour
	}
	s.limits.Store(&l)
	s.sched.SetDeliveryTimeout(l.DeliveryTimeout)
}

func (s *Service) Limits() Limits { return *s.limits.Load() }

// Startup rebuilds the timers from the store. Create and cancel are refused
// until it has succeeded once.
func (s *Service) Startup(ctx context.Context) error {
	now := s.clock.Now()
	armed, expired, err := s.sched.Reconcile(ctx, now)
	if err != nil {
		return err
	}
	s.started.Store(true)
	s.log.Info("reminders reconciled", logx.Int("armed", armed), logx.Int64("expired_dropped", expired))
	return nil
}

// Stop disarms all timers; pending reminders stay stored.
func (s *Service) Stop(ctx context.Context) error {
	s.started.Store(false)
	return s.sched.Stop(ctx)
}

func (s *Service) CreateReminder(ctx context.Context, owner int64, threadID int, text, durationText string) (Created, error) {
	if !s.started.Load() {
		return Created{}, ErrNotStarted
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Created{}, ErrEmptyText
	}
	secs, err := ParseDuration(durationText)
	if err != nil {
		return Created{}, err
	}
	unlock := s.owners.lock(owner)
	defer unlock()
	if max := s.Limits().MaxPerOwner; max > 0 && s.sched.CountOwner(owner) >= max {
		return Created{}, ErrTooManyReminders
	}

	now := s.clock.Now()
	r := storage.Reminder{
		Owner:     owner,
		ThreadID:  threadID,
		Text:      text,
		RemindAt:  now.Add(time.Duration(secs) * time.Second),
		CreatedAt: now,
	}
	// Insert must succeed before a timer exists for the record.
	id, err := s.store.Insert(ctx, r)
	if err != nil {
		s.log.Warn("reminder insert failed", logx.Int64("owner", owner), logx.Err(err))
		return Created{}, storeErr("insert", err)
	}
	r.ID = id
	if err := s.sched.Schedule(ctx, r); err != nil {
		// No timer exists, so dropping the record cannot lose a delivery.
		// If the drop fails too, the next reconcile arms it.
		s.log.Warn("reminder schedule failed", logx.Int64("id", id), logx.Err(err))
		if _, derr := s.store.DeleteOwned(context.WithoutCancel(ctx), id, owner); derr != nil {
			s.log.Error("unscheduled reminder left in store", logx.Int64("id", id), logx.Err(derr))
		}
		if errors.Is(err, ErrStopped) {
			return Created{}, ErrNotStarted
		}
		return Created{}, err
	}

	s.log.Info("reminder created", logx.Int64("id", id), logx.Int64("owner", owner), logx.Uint64("seconds", secs))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.ReminderCreated, Time: now, Data: eventbus.ReminderEvent{ID: id, Owner: owner}})
	}
	return Created{ID: id, Seconds: secs, RemindAt: r.RemindAt}, nil
}

// ListReminders returns owner's pending reminders that are not yet due,
// soonest first.
func (s *Service) ListReminders(ctx context.Context, owner int64) ([]Pending, error) {
	rs, err := s.store.ListByOwner(ctx, owner)
	if err != nil {
		s.log.Warn("reminder list failed", logx.Int64("owner", owner), logx.Err(err))
		return nil, storeErr("list", err)
	}
	now := s.clock.Now()
	out := make([]Pending, 0, len(rs))
	for _, r := range rs {
		// Due records are fired or left over from a failed post-fire
		// delete; cancel can no longer reach them.
		if !r.RemindAt.After(now) {
			continue
		}
		left := int64(r.RemindAt.Sub(now) / time.Second)
		out = append(out, Pending{ID: r.ID, Text: r.Text, SecondsRemaining: left})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SecondsRemaining < out[j].SecondsRemaining })
	return out, nil
}

// CancelReminder disarms and deletes owner's reminder id. NotFound covers
// unknown ids, other owners' ids, and reminders that already fired.
func (s *Service) CancelReminder(ctx context.Context, owner, id int64) (CancelResult, error) {
	if !s.started.Load() {
		return NotFound, ErrNotStarted
	}
	r, ok := s.sched.Disarm(id, owner)
	if !ok {
		return NotFound, nil
	}
	if _, err := s.store.DeleteOwned(ctx, id, owner); err != nil {
		// Put the timer back so the reminder neither vanishes nor comes
		// back unarmed after a restart.
		if serr := s.sched.Schedule(context.WithoutCancel(ctx), r); serr != nil && !errors.Is(serr, ErrStopped) {
			s.log.Error("re-arm after failed cancel failed", logx.Int64("id", id), logx.Err(serr))
		}
		s.log.Warn("reminder delete failed", logx.Int64("id", id), logx.Err(err))
		return NotFound, storeErr("delete", err)
	}

	s.log.Info("reminder cancelled", logx.Int64("id", id), logx.Int64("owner", owner))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.ReminderCancelled, Time: s.clock.Now(), Data: eventbus.ReminderEvent{ID: id, Owner: owner}})
	}
	return Cancelled, nil
}

// Sweep deletes records that are past due by more than the grace period.
// They only exist when a post-fire delete failed.
func (s *Service) Sweep(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-s.Limits().SweepGrace)
	n, err := s.store.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, storeErr("sweep", err)
	}
	if n > 0 {
		s.log.Warn("swept orphaned reminders", logx.Int64("count", n))
	}
	return n, nil
}

// Snapshot is the scheduler view for debug endpoints.
func (s *Service) Snapshot() SchedulerStats { return s.sched.Stats() }

func (s *Service) Started() bool { return s.started.Load() }

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error { return s.store.Ping(ctx) }
