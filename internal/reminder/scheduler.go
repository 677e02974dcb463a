package reminder

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"remindbot/internal/eventbus"
	"remindbot/internal/storage"
	logx "remindbot/pkg/logx"
)

// Deliverer sends a fired reminder to its owner.
type Deliverer interface {
	Deliver(ctx context.Context, r storage.Reminder) error
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(ctx context.Context, r storage.Reminder) error

func (f DelivererFunc) Deliver(ctx context.Context, r storage.Reminder) error { return f(ctx, r) }

type handleState uint8

const (
	stateArmed handleState = iota
	stateDisarmed
	stateFired
)

func (s handleState) String() string {
	switch s {
	case stateArmed:
		return "armed"
	case stateDisarmed:
		return "disarmed"
	case stateFired:
		return "fired"
	default:
		return "unknown"
	}
}

// handle is the scheduler's record for one armed timer. state only moves
// away from armed, and only under Scheduler.mu.
type handle struct {
	r     storage.Reminder
	state handleState
	timer Timer
}

// SchedulerStats is a point-in-time view for debug output.
type SchedulerStats struct {
	Armed          int       `json:"armed"`
	NextAt         time.Time `json:"next_at,omitempty"`
	Scheduled      uint64    `json:"scheduled"`
	Fired          uint64    `json:"fired"`
	Delivered      uint64    `json:"delivered"`
	DeliveryFailed uint64    `json:"delivery_failed"`
	Cancelled      uint64    `json:"cancelled"`
	Expired        uint64    `json:"expired"`
	OrphanDeletes  uint64    `json:"orphan_deletes_failed"`
}

// Scheduler owns one timer per pending reminder id.
//
// A fire and a disarm for the same id are decided under mu by the handle
// state, so exactly one of them wins. Store I/O and delivery run outside mu.
type Scheduler struct {
	clock   Clock
	store   storage.Store
	deliver Deliverer
	bus     eventbus.Bus
	log     logx.Logger

	// ctx bounds deliveries and post-fire deletes; cancelled by Stop.
	ctx    context.Context
	cancel context.CancelFunc

	deliveryTimeout atomic.Int64 // time.Duration

	mu      sync.Mutex
	handles map[int64]*handle
	stopped bool
	flight  sync.WaitGroup

	scheduled, fired, delivered, failed, cancelled, expired, orphans atomic.Uint64
}

type SchedulerOptions struct {
	Clock           Clock
	Bus             eventbus.Bus
	Log             logx.Logger
	DeliveryTimeout time.Duration
}

func NewScheduler(store storage.Store, deliver Deliverer, opt SchedulerOptions) *Scheduler {
	if opt.Clock == nil {
		opt.Clock = RealClock()
	}
	if opt.Log.IsZero() {
		opt.Log = logx.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		clock:   opt.Clock,
		store:   store,
		deliver: deliver,
		bus:     opt.Bus,
		log:     opt.Log.With(logx.String("comp", "reminder.scheduler")),
		ctx:     ctx,
		cancel:  cancel,
		handles: map[int64]*handle{},
	}
	s.SetDeliveryTimeout(opt.DeliveryTimeout)
	return s
}

// SetDeliveryTimeout bounds each Deliver call; <= 0 means 15s.
func (s *Scheduler) SetDeliveryTimeout(d time.Duration) {
	if d <= 0 {
		d = 15 * time.Second
	}
	s.deliveryTimeout.Store(int64(d))
}

func (s *Scheduler) publish(typ string, r storage.Reminder, err error) {
	if s.bus == nil {
		return
	}
	ev := eventbus.ReminderEvent{ID: r.ID, Owner: r.Owner}
	if err != nil {
		ev.Err = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: s.clock.Now(), Data: ev})
}

// disarmLocked stops h and forgets it. Caller holds mu and has checked that
// h is the current armed handle.
func (s *Scheduler) disarmLocked(h *handle) {
	h.timer.Stop()
	h.state = stateDisarmed
	delete(s.handles, h.r.ID)
}

// Schedule arms a timer for r. A reminder already due is deleted from the
// store without delivery. Scheduling an id that is already armed replaces
// the old timer.
func (s *Scheduler) Schedule(ctx context.Context, r storage.Reminder) error {
	delay := r.RemindAt.Sub(s.clock.Now())
	if delay <= 0 {
		s.mu.Lock()
		if old := s.handles[r.ID]; old != nil && old.state == stateArmed {
			s.disarmLocked(old)
		}
		s.mu.Unlock()

		s.expired.Add(1)
		s.log.Debug("reminder already due; dropping", logx.Int64("id", r.ID), logx.Time("remind_at", r.RemindAt))
		s.publish(eventbus.ReminderExpired, r, nil)
		return storeErr("delete", s.store.DeleteByID(ctx, r.ID))
	}

	h := &handle{r: r, state: stateArmed}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return ErrStopped
	}
	if old := s.handles[r.ID]; old != nil && old.state == stateArmed {
		s.log.Warn("duplicate schedule; replacing armed timer", logx.Int64("id", r.ID))
		s.disarmLocked(old)
	}
	h.timer = s.clock.AfterFunc(delay, func() { s.fire(h) })
	s.handles[r.ID] = h
	s.scheduled.Add(1)
	return nil
}

func (s *Scheduler) fire(h *handle) {
	s.mu.Lock()
	if s.handles[h.r.ID] != h || h.state != stateArmed {
		s.mu.Unlock()
		return
	}
	h.state = stateFired
	delete(s.handles, h.r.ID)
	s.flight.Add(1)
	s.mu.Unlock()
	defer s.flight.Done()

	r := h.r
	s.fired.Add(1)
	log := s.log.With(logx.Int64("id", r.ID), logx.Int64("owner", r.Owner))

	dctx, cancel := context.WithTimeout(s.ctx, time.Duration(s.deliveryTimeout.Load()))
	err := s.deliver.Deliver(dctx, r)
	cancel()
	if err != nil {
		s.failed.Add(1)
		log.Warn("reminder delivery failed", logx.Err(err))
		s.publish(eventbus.ReminderDeliveryFailed, r, err)
	} else {
		s.delivered.Add(1)
		log.Info("reminder delivered")
		s.publish(eventbus.ReminderFired, r, nil)
	}

	// Deleted whatever the delivery outcome; there is no retry.
	if err := s.store.DeleteByID(s.ctx, r.ID); err != nil {
		s.orphans.Add(1)
		log.Error("post-fire delete failed; left for the sweep", logx.Err(err))
	}
}

// Cancel disarms id if it is armed.
func (s *Scheduler) Cancel(id int64) bool {
	_, ok := s.disarm(id, func(storage.Reminder) bool { return true })
	return ok
}

// Disarm disarms id only if it is armed and belongs to owner. It returns the
// disarmed reminder so the caller can re-arm it if follow-up work fails.
func (s *Scheduler) Disarm(id, owner int64) (storage.Reminder, bool) {
	return s.disarm(id, func(r storage.Reminder) bool { return r.Owner == owner })
}

func (s *Scheduler) disarm(id int64, match func(storage.Reminder) bool) (storage.Reminder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.handles[id]
	if h == nil || h.state != stateArmed || !match(h.r) {
		return storage.Reminder{}, false
	}
	s.disarmLocked(h)
	s.cancelled.Add(1)
	return h.r, true
}

// CountOwner returns the number of armed reminders owned by owner.
func (s *Scheduler) CountOwner(owner int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, h := range s.handles {
		if h.r.Owner == owner {
			n++
		}
	}
	return n
}

// Reconcile drops reminders due at or before now and arms the rest.
func (s *Scheduler) Reconcile(ctx context.Context, now time.Time) (armed int, expired int64, err error) {
	expired, err = s.store.DeleteExpired(ctx, now)
	if err != nil {
		return 0, 0, storeErr("delete expired", err)
	}
	pending, err := s.store.ListPendingAsOf(ctx, now)
	if err != nil {
		return 0, expired, storeErr("list pending", err)
	}
	for _, r := range pending {
		if err := s.Schedule(ctx, r); err != nil {
			s.log.Warn("reconcile schedule failed", logx.Int64("id", r.ID), logx.Err(err))
			continue
		}
		armed++
	}
	s.expired.Add(uint64(expired))
	return armed, expired, nil
}

// Stop disarms every timer and waits for in-flight deliveries until ctx
// ends. Pending reminders stay in the store for the next start.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	for _, h := range s.handles {
		if h.state == stateArmed {
			h.timer.Stop()
			h.state = stateDisarmed
		}
	}
	n := len(s.handles)
	s.handles = map[int64]*handle{}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.flight.Wait()
		close(done)
	}()
	defer s.cancel()
	select {
	case <-done:
		s.log.Debug("scheduler stopped", logx.Int("disarmed", n))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) Stats() SchedulerStats {
	st := SchedulerStats{
		Scheduled:      s.scheduled.Load(),
		Fired:          s.fired.Load(),
		Delivered:      s.delivered.Load(),
		DeliveryFailed: s.failed.Load(),
		Cancelled:      s.cancelled.Load(),
		Expired:        s.expired.Load(),
		OrphanDeletes:  s.orphans.Load(),
	}
	s.mu.Lock()
	st.Armed = len(s.handles)
	for _, h := range s.handles {
		if st.NextAt.IsZero() || h.r.RemindAt.Before(st.NextAt) {
			st.NextAt = h.r.RemindAt
		}
	}
	s.mu.Unlock()
	return st
}
