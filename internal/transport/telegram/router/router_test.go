package router

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"remindbot/internal/reminder"
	"remindbot/internal/storage"
	kit "remindbot/internal/transport"
)

type sent struct {
	to   kit.ChatTarget
	text string
}

type fakeAdapter struct {
	mu   sync.Mutex
	msgs []sent
	err  error
	menu []kit.BotCommand
}

func (a *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (a *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (a *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, sent{to: to, text: text})
	return kit.MessageRef{ChatID: to.ChatID}, a.err
}

func (a *fakeAdapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	a.mu.Lock()
	a.menu = cmds
	a.mu.Unlock()
	return nil
}

func (a *fakeAdapter) last(t *testing.T) sent {
	t.Helper()
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.msgs) == 0 {
		t.Fatal("no message sent")
	}
	return a.msgs[len(a.msgs)-1]
}

type fakeService struct {
	createErr error
	cancelRes reminder.CancelResult
	cancelErr error
	listErr   error
	items     []reminder.Pending

	gotOwner  int64
	gotThread int
	gotText   string
	gotDur    string
}

func (s *fakeService) CreateReminder(ctx context.Context, owner int64, threadID int, text, dur string) (reminder.Created, error) {
	s.gotOwner, s.gotThread, s.gotText, s.gotDur = owner, threadID, text, dur
	if s.createErr != nil {
		return reminder.Created{}, s.createErr
	}
	secs, err := reminder.ParseDuration(dur)
	if err != nil {
		return reminder.Created{}, err
	}
	return reminder.Created{ID: 1, Seconds: secs}, nil
}

func (s *fakeService) ListReminders(ctx context.Context, owner int64) ([]reminder.Pending, error) {
	return s.items, s.listErr
}

func (s *fakeService) CancelReminder(ctx context.Context, owner, id int64) (reminder.CancelResult, error) {
	return s.cancelRes, s.cancelErr
}

func (s *fakeService) Limits() reminder.Limits { return reminder.Limits{MaxPerOwner: 3} }

func run(t *testing.T, r *Router, chatID int64, text string) {
	t.Helper()
	job := r.prepare(context.Background(), kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{
		ChatID: chatID, ThreadID: 4, FromID: 9, FromName: "Аня", Text: text,
	}})
	if job == nil {
		t.Fatalf("no job for %q", text)
	}
	job()
}

func newTestRouter(svc ReminderService, rate int) (*Router, *fakeAdapter) {
	a := &fakeAdapter{}
	return New(Options{Adapter: a, Service: svc, CreateRatePerMin: rate}), a
}

func TestRemindCreates(t *testing.T) {
	svc := &fakeService{}
	r, a := newTestRouter(svc, 0)

	run(t, r, 100, "/remind@remind_bot купить молоко через 5 минут")
	if svc.gotOwner != 100 || svc.gotThread != 4 || svc.gotText != "купить молоко" || svc.gotDur != "5 минут" {
		t.Fatalf("service got %+v", svc)
	}
	want := "✅ Напоминание #1 создано\n📝 купить молоко\n🕐 Через 5 мин"
	if got := a.last(t); got.text != want || got.to.ThreadID != 4 {
		t.Fatalf("reply = %+v, want %q", got, want)
	}
}

func TestRemindReplies(t *testing.T) {
	tests := []struct {
		name string
		err  error
		text string
		want string
	}{
		{"parse error", nil, "/remind чай через когда-нибудь", msgParseError},
		{"no separator", nil, "/remind чай", msgRemindUsage},
		{"no note", nil, "/remind через 5 минут", msgRemindUsage},
		{"store error", &reminder.StoreError{Op: "insert", Err: errors.New("disk")}, "/remind чай через 5 минут", msgSaveError},
		{"too many", reminder.ErrTooManyReminders, "/remind чай через 5 минут", tooManyText(3)},
		{"not started", reminder.ErrNotStarted, "/remind чай через 5 минут", msgNotReady},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, a := newTestRouter(&fakeService{createErr: tt.err}, 0)
			run(t, r, 1, tt.text)
			if got := a.last(t).text; got != tt.want {
				t.Fatalf("reply = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRemindRateLimited(t *testing.T) {
	r, a := newTestRouter(&fakeService{}, 2)
	for i := 0; i < 2; i++ {
		run(t, r, 1, "/remind чай через 5 минут")
	}
	run(t, r, 1, "/remind чай через 5 минут")
	if got := a.last(t).text; got != msgRateLimited {
		t.Fatalf("reply = %q", got)
	}
	// other chats have their own bucket
	run(t, r, 2, "/remind чай через 5 минут")
	if got := a.last(t).text; got == msgRateLimited {
		t.Fatal("limit leaked across chats")
	}
}

func TestList(t *testing.T) {
	svc := &fakeService{}
	r, a := newTestRouter(svc, 0)

	run(t, r, 1, "/list")
	if got := a.last(t).text; got != msgNoReminders {
		t.Fatalf("empty list = %q", got)
	}

	svc.items = []reminder.Pending{{ID: 2, Text: "чай", SecondsRemaining: 45}, {ID: 1, Text: "молоко", SecondsRemaining: 3720}}
	run(t, r, 1, "/list")
	want := "📋 Активные напоминания:\n\n#2 — чай\n   ⏳ осталось 45 сек\n\n#1 — молоко\n   ⏳ осталось 1 ч 2 мин"
	if got := a.last(t).text; got != want {
		t.Fatalf("list = %q, want %q", got, want)
	}

	svc.listErr = errors.New("db down")
	run(t, r, 1, "/list")
	if got := a.last(t).text; got != msgLoadError {
		t.Fatalf("error reply = %q", got)
	}
}

func TestCancel(t *testing.T) {
	svc := &fakeService{cancelRes: reminder.Cancelled}
	r, a := newTestRouter(svc, 0)

	run(t, r, 1, "/cancel 7")
	if got := a.last(t).text; got != "🗑 Напоминание #7 удалено" {
		t.Fatalf("reply = %q", got)
	}
	svc.cancelRes = reminder.NotFound
	run(t, r, 1, "/cancel #7")
	if got := a.last(t).text; got != msgNotFound {
		t.Fatalf("reply = %q", got)
	}
	run(t, r, 1, "/cancel abc")
	if got := a.last(t).text; got != msgCancelUsage {
		t.Fatalf("reply = %q", got)
	}
	svc.cancelErr = &reminder.StoreError{Op: "delete", Err: errors.New("x")}
	run(t, r, 1, "/cancel 7")
	if got := a.last(t).text; got != msgDeleteError {
		t.Fatalf("reply = %q", got)
	}
}

func TestStartAndHelp(t *testing.T) {
	r, a := newTestRouter(&fakeService{}, 0)
	run(t, r, 1, "/start")
	if got := a.last(t).text; !strings.HasPrefix(got, "👋 Привет, Аня!") || strings.Contains(got, "donate") {
		t.Fatalf("start = %q", got)
	}
	run(t, r, 1, "/h")
	if got := a.last(t).text; !strings.Contains(got, "/remind <текст> через <время>") {
		t.Fatalf("help = %q", got)
	}
}

func TestPrepareIgnoresNonCommands(t *testing.T) {
	r, _ := newTestRouter(&fakeService{}, 0)
	ctx := context.Background()
	if r.prepare(ctx, kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 1, Text: "hello"}}) != nil {
		t.Fatal("plain text should be ignored")
	}
	if r.prepare(ctx, kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: -100, Text: "/weather"}}) != nil {
		t.Fatal("unknown group command should be ignored")
	}
	if r.prepare(ctx, kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 5, Text: "/weather"}}) == nil {
		t.Fatal("unknown private command should get a reply")
	}
}

func TestDispatchLoop(t *testing.T) {
	r, a := newTestRouter(&fakeService{}, 0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	updates := make(chan kit.Update, 1)
	done := make(chan error, 1)
	go func() { done <- r.DispatchLoop(ctx, updates) }()

	updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 1, Text: "/list"}}
	deadline := time.Now().Add(2 * time.Second)
	for {
		a.mu.Lock()
		n := len(a.msgs)
		a.mu.Unlock()
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no reply from dispatcher")
		}
		time.Sleep(10 * time.Millisecond)
	}
	close(updates)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
}

func TestPublishMenu(t *testing.T) {
	r, a := newTestRouter(&fakeService{}, 0)
	r.PublishMenu(context.Background())
	if len(a.menu) != 5 || a.menu[0].Command != "start" {
		t.Fatalf("menu = %+v", a.menu)
	}
}

func TestDelivery(t *testing.T) {
	a := &fakeAdapter{}
	d := NewDelivery(a)
	err := d.Deliver(context.Background(), storage.Reminder{ID: 3, Owner: 77, ThreadID: 5, Text: "позвонить"})
	if err != nil {
		t.Fatal(err)
	}
	got := a.last(t)
	if got.to.ChatID != 77 || got.to.ThreadID != 5 || got.text != "⏰ НАПОМИНАНИЕ #3\n📝 позвонить" {
		t.Fatalf("delivered %+v", got)
	}
	a.err = errors.New("blocked")
	if d.Deliver(context.Background(), storage.Reminder{ID: 4}) == nil {
		t.Fatal("send error should propagate")
	}
}

func TestPanickingCommandReplies(t *testing.T) {
	r, a := newTestRouter(&fakeService{}, 0)
	r.register([]Command{{Name: "boom", Handle: func(context.Context, *Request) error { panic("kaput") }}})
	run(t, r, 1, "/boom")
	if got := a.last(t).text; got != msgInternal {
		t.Fatalf("reply = %q", got)
	}
}
