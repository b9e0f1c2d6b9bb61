package bot

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/example/agenda/internal/event"
	"github.com/example/agenda/internal/schedule"
	"github.com/example/agenda/internal/store"
	"github.com/example/agenda/internal/template"
	"github.com/example/agenda/internal/todo"
	"github.com/example/agenda/internal/user"
)

type fakeSender struct {
	to    []int64
	texts []string
}

func (f *fakeSender) SendMessage(_ context.Context, chatID int64, text string) error {
	f.to = append(f.to, chatID)
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeSender) last() string {
	if len(f.texts) == 0 {
		return ""
	}
	return f.texts[len(f.texts)-1]
}

type fakeUserRepo struct {
	records []store.UserRecord
}

func (f *fakeUserRepo) List(context.Context) ([]store.UserRecord, error) { return f.records, nil }
func (f *fakeUserRepo) Upsert(_ context.Context, rec store.UserRecord) error {
	f.records = append(f.records, rec)
	return nil
}

type fakeEventRepo struct {
	saved map[int64][]event.Event
}

func (f *fakeEventRepo) ListEvents(_ context.Context, userID int64) ([]event.Event, error) {
	return append([]event.Event(nil), f.saved[userID]...), nil
}

func (f *fakeEventRepo) ReplaceEvents(_ context.Context, userID int64, events []event.Event) error {
	f.saved[userID] = append([]event.Event(nil), events...)
	return nil
}

type fakeTemplateRepo struct {
	byWeekday map[time.Weekday][]event.Event
}

func (f *fakeTemplateRepo) ListAll(context.Context, int64) ([]event.Event, error) {
	var out []event.Event
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		out = append(out, f.byWeekday[wd]...)
	}
	return out, nil
}

func (f *fakeTemplateRepo) ListForWeekday(_ context.Context, _ int64, wd time.Weekday) ([]event.Event, error) {
	return append([]event.Event(nil), f.byWeekday[wd]...), nil
}

func (f *fakeTemplateRepo) ReplaceForWeekday(_ context.Context, _ int64, wd time.Weekday, events []event.Event) error {
	f.byWeekday[wd] = append([]event.Event(nil), events...)
	return nil
}

type fakeTodoRepo struct {
	lists map[string][]string
}

func (f *fakeTodoRepo) GetList(_ context.Context, userID int64, name string) ([]string, error) {
	return append([]string(nil), f.lists[fmt.Sprintf("%d/%s", userID, name)]...), nil
}

func (f *fakeTodoRepo) SaveList(_ context.Context, userID int64, name string, items []string) error {
	f.lists[fmt.Sprintf("%d/%s", userID, name)] = append([]string(nil), items...)
	return nil
}

const testPassword = "open sesame"

type fixture struct {
	bot    *Bot
	sender *fakeSender
	sched  *schedule.Scheduler
	reg    *user.Registry
}

// newFixture builds a bot over in-memory collaborators with one registered
// user (chat ID 7).
func newFixture(t *testing.T) *fixture {
	t.Helper()
	users := &fakeUserRepo{records: []store.UserRecord{{ID: 7, Name: "Ada", WakeTime: "09:00"}}}
	events := &fakeEventRepo{saved: make(map[int64][]event.Event)}
	templates := template.NewStore(&fakeTemplateRepo{byWeekday: make(map[time.Weekday][]event.Event)})
	todos := todo.NewService(&fakeTodoRepo{lists: make(map[string][]string)})

	reg := user.NewRegistry(users, events)
	if err := reg.Load(context.Background()); err != nil {
		t.Fatalf("load registry: %v", err)
	}

	sched := schedule.New(reg, templates.ExpandForDate, nil, schedule.Config{})
	sender := &fakeSender{}

	hash, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}

	b := New(reg, sched, templates, todos, sender, string(hash), "https://agenda.example.com")
	sched.SetNotifier(b)
	return &fixture{bot: b, sender: sender, sched: sched, reg: reg}
}

func update(chatID int64, text string) Update {
	return Update{Message: &Message{Chat: Chat{ID: chatID, FirstName: "Ada"}, Text: text}}
}

func (f *fixture) handle(text string) {
	f.bot.HandleUpdate(context.Background(), update(7, text))
}

func TestUnknownUserIsIgnored(t *testing.T) {
	f := newFixture(t)

	f.bot.HandleUpdate(context.Background(), update(99, "/events"))
	if len(f.sender.texts) != 0 {
		t.Fatal("unregistered user got a reply")
	}
}

func TestRegister(t *testing.T) {
	f := newFixture(t)

	// Wrong password: no reply at all, no account.
	f.bot.HandleUpdate(context.Background(), update(99, "/register wrong"))
	if len(f.sender.texts) != 0 || f.reg.Get(99) != nil {
		t.Fatal("wrong password must be silently dropped")
	}

	f.bot.HandleUpdate(context.Background(), update(99, "/register "+testPassword))
	if f.reg.Get(99) == nil {
		t.Fatal("user not registered")
	}
	if f.sender.last() != message("RegisterSuccess") {
		t.Errorf("reply = %q", f.sender.last())
	}
	if f.reg.Get(99).WakeTime != user.DefaultWakeTime {
		t.Errorf("wake time = %q, want default", f.reg.Get(99).WakeTime)
	}

	f.bot.HandleUpdate(context.Background(), update(99, "/register "+testPassword))
	if f.sender.last() != message("AlreadyRegistered") {
		t.Errorf("second register reply = %q", f.sender.last())
	}
}

func TestSetEvent(t *testing.T) {
	f := newFixture(t)

	f.handle("/set 24.12.2026-18:30-Dinner")
	if f.sender.last() != message("EventAdded") {
		t.Fatalf("reply = %q", f.sender.last())
	}
	if got := f.reg.Get(7).Events(); len(got) != 1 || got[0].Title != "Dinner" {
		t.Fatalf("stored events = %v", got)
	}

	f.handle("/set 24.12.2026-18:30-Dinner")
	if f.sender.last() != message("EventExists") {
		t.Errorf("duplicate reply = %q", f.sender.last())
	}

	f.handle("/set next tuesday")
	if f.sender.last() != message("ArgumentError") {
		t.Errorf("malformed reply = %q", f.sender.last())
	}
}

func TestSetEventForTodayEntersCache(t *testing.T) {
	f := newFixture(t)

	// A first tick rolls the cache over to the current date.
	f.sched.Tick(context.Background())
	today := time.Now()
	spec := fmt.Sprintf("/set %s-23:59-Tonight", today.Format("02.01.2006"))

	f.handle(spec)
	if f.sender.last() != message("EventAdded") {
		t.Fatalf("reply = %q", f.sender.last())
	}

	var cached []event.Event
	f.sched.Do(func(c *schedule.Cache) {
		cached = append(cached, c.Events()...)
	})
	found := false
	for _, e := range cached {
		if e.Title == "Tonight" {
			found = true
		}
	}
	if !found {
		t.Error("today's new event missing from the daily cache")
	}
}

func TestDeleteEvent(t *testing.T) {
	f := newFixture(t)
	f.handle("/set 24.12.2026-18:30-Dinner")

	f.handle("/del 24.12.2026-18:30")
	if f.sender.last() != message("EventDeleted") {
		t.Fatalf("reply = %q", f.sender.last())
	}
	if got := f.reg.Get(7).Events(); len(got) != 0 {
		t.Fatalf("events after delete = %v", got)
	}

	f.handle("/del 24.12.2026-18:30")
	if f.sender.last() != message("EventNotFound") {
		t.Errorf("reply = %q", f.sender.last())
	}
}

func TestDeleteByName(t *testing.T) {
	f := newFixture(t)
	f.handle("/set 24.12.2026-18:30-Team Meeting")

	f.handle("/delname teammeeting")
	if f.sender.last() != message("EventDeleted") {
		t.Fatalf("reply = %q", f.sender.last())
	}
	if got := f.reg.Get(7).Events(); len(got) != 0 {
		t.Fatalf("events after delname = %v", got)
	}
}

func TestEventsListing(t *testing.T) {
	f := newFixture(t)

	f.handle("/events")
	if f.sender.last() != message("EventsTodayEmpty") {
		t.Fatalf("empty reply = %q", f.sender.last())
	}

	// A future event shows up in /schedule but not in today's /events.
	f.handle("/set 24.12.2077-18:30-Dinner")
	f.handle("/events")
	if f.sender.last() != message("EventsTodayEmpty") {
		t.Fatalf("future event leaked into /events: %q", f.sender.last())
	}
	f.handle("/schedule")
	if !strings.Contains(f.sender.last(), "Dinner") {
		t.Errorf("schedule = %q", f.sender.last())
	}

	today := fmt.Sprintf("/set %s-23:58-Tonight", time.Now().Format("02.01.2006"))
	f.handle(today)
	f.handle("/events")
	if !strings.Contains(f.sender.last(), "Tonight") {
		t.Errorf("today listing = %q", f.sender.last())
	}
}

func TestClearFlow(t *testing.T) {
	f := newFixture(t)
	f.handle("/set 24.12.2026-18:30-Dinner")

	f.handle("/clear")
	if f.sender.last() != message("ClearConfirm") {
		t.Fatalf("prompt = %q", f.sender.last())
	}

	// Anything but yes declines.
	f.handle("no")
	if f.sender.last() != message("EventsNotCleared") {
		t.Fatalf("decline reply = %q", f.sender.last())
	}
	if len(f.reg.Get(7).Events()) != 1 {
		t.Fatal("events cleared despite declining")
	}

	f.handle("/clear")
	f.handle("yes")
	if f.sender.last() != message("EventsCleared") {
		t.Fatalf("confirm reply = %q", f.sender.last())
	}
	if len(f.reg.Get(7).Events()) != 0 {
		t.Fatal("events not cleared")
	}
}

func TestWakeTimeCommand(t *testing.T) {
	f := newFixture(t)

	f.handle("/waketime 06:45")
	if f.sender.last() != message("WakeTimeSet", "time", "06:45") {
		t.Fatalf("reply = %q", f.sender.last())
	}
	if f.reg.Get(7).WakeTime != "06:45" {
		t.Error("wake time not stored")
	}

	f.handle("/waketime half past nine")
	if f.sender.last() != message("WakeTimeInvalid") {
		t.Errorf("invalid reply = %q", f.sender.last())
	}
}

func TestSetDayFlow(t *testing.T) {
	f := newFixture(t)

	f.handle("/setday monday")
	if !strings.Contains(f.sender.last(), "Monday") {
		t.Fatalf("prompt = %q", f.sender.last())
	}

	f.handle("08:30-Standup;18:00-Gym")
	if f.sender.last() != message("EventAdded") {
		t.Fatalf("reply = %q", f.sender.last())
	}

	f.handle("/getday monday")
	plan := f.sender.last()
	if !strings.Contains(plan, "Standup") || !strings.Contains(plan, "Gym") {
		t.Errorf("day plan = %q", plan)
	}

	f.handle("/getday monsday")
	if f.sender.last() != message("WeekdayInvalid") {
		t.Errorf("invalid weekday reply = %q", f.sender.last())
	}
}

func TestTodoFlow(t *testing.T) {
	f := newFixture(t)

	f.handle("/todo")
	if f.sender.last() != message("TodoPrompt") {
		t.Fatalf("prompt = %q", f.sender.last())
	}

	f.handle("/todo general")
	if f.sender.last() != message("TodoEmpty") {
		t.Fatalf("empty list reply = %q", f.sender.last())
	}

	f.handle("buy milk")
	if f.sender.last() != message("TodoSaved") {
		t.Fatalf("save reply = %q", f.sender.last())
	}

	f.handle("/done buy milk")
	if f.sender.last() != message("DoneToggled") {
		t.Fatalf("done reply = %q", f.sender.last())
	}

	f.handle("/done flying lessons")
	if f.sender.last() != message("DoneNotFound") {
		t.Errorf("missing item reply = %q", f.sender.last())
	}
}

func TestExportCommand(t *testing.T) {
	f := newFixture(t)

	f.handle("/export")
	want := message("ExportReady", "url", "https://agenda.example.com/export/7.ics")
	if f.sender.last() != want {
		t.Errorf("reply = %q, want %q", f.sender.last(), want)
	}
}

func TestUnknownInput(t *testing.T) {
	f := newFixture(t)

	f.handle("/frobnicate")
	if f.sender.last() != message("UnrecognisedCommand") {
		t.Errorf("command reply = %q", f.sender.last())
	}

	f.handle("hello there")
	if f.sender.last() != message("UnrecognisedText") {
		t.Errorf("text reply = %q", f.sender.last())
	}
}

func TestWebhookHandler(t *testing.T) {
	f := newFixture(t)
	h := f.bot.WebhookHandler("s3cret")

	body := `{"update_id":1,"message":{"message_id":2,"text":"/events","chat":{"id":7,"first_name":"Ada"}}}`

	t.Run("missing secret", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(body))
		rec := httptest.NewRecorder()
		h(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("valid", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(body))
		req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "s3cret")
		rec := httptest.NewRecorder()
		h(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if f.sender.last() != message("ScheduleEmpty") {
			t.Errorf("update not dispatched, last reply = %q", f.sender.last())
		}
	})

	t.Run("bad payload", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader("{"))
		req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "s3cret")
		rec := httptest.NewRecorder()
		h(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})
}
