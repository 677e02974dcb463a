package router

import (
	"context"
	"errors"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"remindbot/internal/reminder"
	rtsup "remindbot/internal/runtime/supervisor"
	kit "remindbot/internal/transport"
	logx "remindbot/pkg/logx"
)

// ReminderService is the reminder core as seen by the commands.
type ReminderService interface {
	CreateReminder(ctx context.Context, owner int64, threadID int, text, durationText string) (reminder.Created, error)
	ListReminders(ctx context.Context, owner int64) ([]reminder.Pending, error)
	CancelReminder(ctx context.Context, owner, id int64) (reminder.CancelResult, error)
	Limits() reminder.Limits
}

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Timeout     time.Duration // optional per-command override
	// Middleware runs inside the common chain, closest to Handle.
	Middleware []Middleware
	Handle     HandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	// Args is the raw text after the command word.
	Args   string
	ReqID  string
	Logger logx.Logger
}

type Options struct {
	Log         logx.Logger
	Adapter     kit.Adapter
	Service     ReminderService
	Supervisors *rtsup.Registry
	// CreateRatePerMin limits /remind per chat; 0 disables.
	CreateRatePerMin int
	Workers          int
	QueueSize        int
}

// Router parses chat commands and runs them on a bounded worker pool.
type Router struct {
	log     logx.Logger
	adapter kit.Adapter
	svc     ReminderService
	reg     *rtsup.Registry

	cmds  map[string]*Command
	order []*Command

	limMu    sync.Mutex
	perMin   int
	limiters map[int64]*rate.Limiter

	workers int
	jobs    chan func()
}

func New(opt Options) *Router {
	if opt.Log.IsZero() {
		opt.Log = logx.Nop()
	}
	if opt.Workers <= 0 {
		opt.Workers = runtime.NumCPU()
		if opt.Workers < 2 {
			opt.Workers = 2
		}
	}
	if opt.QueueSize <= 0 {
		opt.QueueSize = 256
	}
	r := &Router{
		log:      opt.Log.With(logx.String("comp", "telegram.router")),
		adapter:  opt.Adapter,
		svc:      opt.Service,
		reg:      opt.Supervisors,
		cmds:     map[string]*Command{},
		limiters: map[int64]*rate.Limiter{},
		perMin:   opt.CreateRatePerMin,
		workers:  opt.Workers,
		jobs:     make(chan func(), opt.QueueSize),
	}
	r.register(r.builtinCommands())
	return r
}

func (r *Router) register(cmds []Command) {
	for i := range cmds {
		c := &cmds[i]
		r.order = append(r.order, c)
		r.cmds[c.Name] = c
		for _, a := range c.Aliases {
			r.cmds[a] = c
		}
	}
}

// SetCreateRate changes the per-chat /remind rate (config reload).
func (r *Router) SetCreateRate(perMin int) {
	r.limMu.Lock()
	defer r.limMu.Unlock()
	if perMin == r.perMin {
		return
	}
	r.perMin = perMin
	r.limiters = map[int64]*rate.Limiter{}
}

func (r *Router) allowCreate(chatID int64) bool {
	r.limMu.Lock()
	defer r.limMu.Unlock()
	if r.perMin <= 0 {
		return true
	}
	lim := r.limiters[chatID]
	if lim == nil {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(r.perMin)), r.perMin)
		r.limiters[chatID] = lim
	}
	return lim.Allow()
}

// MenuCommands is the command list for the Telegram menu.
func (r *Router) MenuCommands() []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(r.order))
	for _, c := range r.order {
		out = append(out, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	return out
}

// PublishMenu pushes MenuCommands to the adapter when it supports it.
func (r *Router) PublishMenu(ctx context.Context) {
	up, ok := r.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := up.UpdateMenuCommands(ctx, r.MenuCommands()); err != nil {
		r.log.Warn("menu update failed", logx.Err(err))
	}
}

func (r *Router) tryEnqueue(fn func()) (ok bool) {
	// the jobs channel is closed on shutdown
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
		}
	}()
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop consumes updates until ctx ends or updates is closed.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(r.log),
		rtsup.WithCancelOnError(false),
	)
	r.reg.Set("telegram.router", sup)
	r.log.Info("command dispatcher started", logx.Int("workers", r.workers), logx.Int("job_queue_cap", cap(r.jobs)))

	for i := 0; i < r.workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-r.jobs:
					if !ok {
						return nil
					}
					func() {
						defer func() {
							if rec := recover(); rec != nil {
								r.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
		)
	}

	defer func() {
		close(r.jobs)
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.reg.Delete("telegram.router")
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			job := r.prepare(ctx, up)
			if job == nil {
				continue
			}
			if !r.tryEnqueue(job) && up.Message != nil {
				r.reply(ctx, kit.ChatTarget{ChatID: up.Message.ChatID, ThreadID: up.Message.ThreadID}, msgBusy)
			}
		}
	}
}

// prepare turns an update into a runnable job, nil when there is nothing to
// do.
func (r *Router) prepare(root context.Context, up kit.Update) func() {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return nil
	}
	msg := up.Message
	word, rest, ok := splitCommand(msg.Text)
	if !ok {
		return nil
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	cmd := r.cmds[word]
	if cmd == nil {
		// stay quiet in groups, other bots may own the command
		if msg.ChatID > 0 {
			return func() { r.reply(root, chat, msgUnknown) }
		}
		return nil
	}

	rid := uuid.NewString()
	req := &Request{
		Update:  up,
		Chat:    chat,
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    rest,
		ReqID:   rid,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int("thread_id", msg.ThreadID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}
	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	mws := append([]Middleware{
		MWRequestLog(750 * time.Millisecond),
		MWRecover(func(ctx context.Context, req *Request) { r.reply(ctx, req.Chat, msgInternal) }),
		MWTimeout(timeout),
	}, cmd.Middleware...)
	final := Chain(cmd.Handle, mws...)
	return func() { _ = final(root, req) }
}

func (r *Router) reply(ctx context.Context, to kit.ChatTarget, text string) {
	if _, err := r.adapter.SendText(ctx, to, text, &kit.SendOptions{DisablePreview: true}); err != nil {
		r.log.Warn("reply failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}

func (r *Router) builtinCommands() []Command {
	return []Command{
		{Name: "start", Description: "приветствие и примеры", Usage: "/start", Handle: r.handleStart},
		{
			Name:        "remind",
			Description: "создать напоминание",
			Usage:       "/remind <текст> через <время>",
			Middleware:  []Middleware{MWRateLimit(r.allowCreate, r.replyRateLimited)},
			Handle:      r.handleRemind,
		},
		{Name: "list", Description: "список напоминаний", Usage: "/list", Handle: r.handleList},
		{Name: "cancel", Description: "удалить напоминание", Usage: "/cancel <номер>", Handle: r.handleCancel},
		{Name: "help", Aliases: []string{"h"}, Description: "список команд", Usage: "/help", Handle: r.handleHelp},
	}
}

func (r *Router) handleStart(ctx context.Context, req *Request) error {
	name := ""
	if req.Update.Message != nil {
		name = req.Update.Message.FromName
	}
	r.reply(ctx, req.Chat, greeting(name))
	return nil
}

func (r *Router) handleHelp(ctx context.Context, req *Request) error {
	var b strings.Builder
	b.WriteString("Команды:\n")
	for _, c := range r.order {
		b.WriteString(c.Usage)
		b.WriteString(" — ")
		b.WriteString(c.Description)
		b.WriteString("\n")
	}
	r.reply(ctx, req.Chat, strings.TrimRight(b.String(), "\n"))
	return nil
}

func (r *Router) handleRemind(ctx context.Context, req *Request) error {
	note, dur, ok := splitRemindArgs(req.Args)
	if !ok || note == "" {
		r.reply(ctx, req.Chat, msgRemindUsage)
		return nil
	}

	c, err := r.svc.CreateReminder(ctx, req.Chat.ChatID, req.Chat.ThreadID, note, dur)
	switch {
	case err == nil:
		r.reply(ctx, req.Chat, createdText(c, note))
		return nil
	case errors.Is(err, reminder.ErrNotUnderstood):
		req.Logger.Debug("duration not understood", logx.String("duration", dur))
		r.reply(ctx, req.Chat, msgParseError)
		return nil
	case errors.Is(err, reminder.ErrEmptyText):
		r.reply(ctx, req.Chat, msgRemindUsage)
		return nil
	case errors.Is(err, reminder.ErrTooManyReminders):
		r.reply(ctx, req.Chat, tooManyText(r.svc.Limits().MaxPerOwner))
		return nil
	case errors.Is(err, reminder.ErrNotStarted):
		r.reply(ctx, req.Chat, msgNotReady)
		return nil
	default:
		r.reply(ctx, req.Chat, msgSaveError)
		return err
	}
}

func (r *Router) replyRateLimited(ctx context.Context, req *Request) error {
	r.reply(ctx, req.Chat, msgRateLimited)
	return nil
}

func (r *Router) handleList(ctx context.Context, req *Request) error {
	items, err := r.svc.ListReminders(ctx, req.Chat.ChatID)
	if err != nil {
		r.reply(ctx, req.Chat, msgLoadError)
		return err
	}
	r.reply(ctx, req.Chat, listText(items))
	return nil
}

func (r *Router) handleCancel(ctx context.Context, req *Request) error {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(req.Args), "#"), 10, 64)
	if err != nil || id <= 0 {
		r.reply(ctx, req.Chat, msgCancelUsage)
		return nil
	}
	res, err := r.svc.CancelReminder(ctx, req.Chat.ChatID, id)
	switch {
	case errors.Is(err, reminder.ErrNotStarted):
		r.reply(ctx, req.Chat, msgNotReady)
		return nil
	case err != nil:
		r.reply(ctx, req.Chat, msgDeleteError)
		return err
	case res == reminder.Cancelled:
		r.reply(ctx, req.Chat, cancelledText(id))
	default:
		r.reply(ctx, req.Chat, msgNotFound)
	}
	return nil
}
