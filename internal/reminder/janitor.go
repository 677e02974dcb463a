package reminder

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "remindbot/pkg/logx"
)

// Sweeper is the janitor's target; *Service implements it.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether spec is a usable cron spec. Empty is
// valid and means disabled.
func ValidateSchedule(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return nil
	}
	_, err := cronParser.Parse(spec)
	return err
}

// Janitor runs Sweep on a cron schedule.
type Janitor struct {
	target Sweeper
	log    logx.Logger

	mu   sync.Mutex
	c    *cron.Cron
	spec string
	loc  *time.Location

	// read by cron jobs without mu; Apply holds mu while swapping crons
	ctx atomic.Pointer[context.Context]
}

func NewJanitor(target Sweeper, log logx.Logger) *Janitor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Janitor{target: target, log: log.With(logx.String("comp", "reminder.janitor")), loc: time.Local}
}

// Start begins sweeping on spec in loc. An empty spec leaves the janitor
// idle until Apply sets one.
func (j *Janitor) Start(ctx context.Context, spec string, loc *time.Location) error {
	j.ctx.Store(&ctx)
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.restartLocked(spec, loc)
}

// Apply reschedules the janitor when spec or loc changed. A sweep already
// running on the old schedule is left to finish on its own.
func (j *Janitor) Apply(spec string, loc *time.Location) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if loc == nil {
		loc = time.Local
	}
	if j.ctx.Load() == nil || (spec == j.spec && loc.String() == j.loc.String()) {
		return nil
	}
	return j.restartLocked(spec, loc)
}

// restartLocked swaps in a cron for spec. The old cron stops scheduling but
// is not waited for: its running job may need the janitor state.
func (j *Janitor) restartLocked(spec string, loc *time.Location) error {
	if err := ValidateSchedule(spec); err != nil {
		return err
	}
	if loc == nil {
		loc = time.Local
	}
	if j.c != nil {
		j.c.Stop()
		j.c = nil
	}
	j.spec, j.loc = spec, loc
	if strings.TrimSpace(spec) == "" {
		j.log.Info("janitor disabled")
		return nil
	}

	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
	)
	if _, err := c.AddFunc(spec, j.runOnce); err != nil {
		return err
	}
	c.Start()
	j.c = c
	j.log.Info("janitor started", logx.String("schedule", spec), logx.String("tz", loc.String()))
	return nil
}

func (j *Janitor) runOnce() {
	ctx := context.Background()
	if p := j.ctx.Load(); p != nil {
		ctx = *p
	}
	if ctx.Err() != nil {
		return
	}
	sctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()
	n, err := j.target.Sweep(sctx)
	if err != nil {
		j.log.Warn("sweep failed", logx.Err(err))
		return
	}
	j.log.Debug("sweep done", logx.Int64("deleted", n), logx.Duration("took", time.Since(start)))
}

// Next returns the next scheduled sweep, zero when idle.
func (j *Janitor) Next() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.c == nil {
		return time.Time{}
	}
	entries := j.c.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (j *Janitor) Stop(ctx context.Context) {
	j.mu.Lock()
	c := j.c
	j.c = nil
	j.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}
