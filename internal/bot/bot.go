// Package bot is the chat transport: it parses incoming Telegram updates
// into commands against the scheduling engine and delivers the engine's
// notifications back out. All state mutations run under the scheduler's
// tick lock so a command can never race a tick over the same store.
package bot

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/agenda/internal/event"
	"github.com/example/agenda/internal/schedule"
	"github.com/example/agenda/internal/template"
	"github.com/example/agenda/internal/todo"
	"github.com/example/agenda/internal/user"
)

// Bot wires the chat commands to the engine's collaborators.
type Bot struct {
	registry  *user.Registry
	sched     *schedule.Scheduler
	templates *template.Store
	todos     *todo.Service
	sender    Sender

	passwordHash string
	baseURL      string
	now          func() time.Time
}

func New(registry *user.Registry, sched *schedule.Scheduler, templates *template.Store, todos *todo.Service, sender Sender, passwordHash, baseURL string) *Bot {
	return &Bot{
		registry:     registry,
		sched:        sched,
		templates:    templates,
		todos:        todos,
		sender:       sender,
		passwordHash: passwordHash,
		baseURL:      strings.TrimRight(baseURL, "/"),
		now:          time.Now,
	}
}

// NotifyReminder implements schedule.Notifier.
func (b *Bot) NotifyReminder(ctx context.Context, e event.Event) error {
	return b.sender.SendMessage(ctx, e.Owner, reminderText(e))
}

// NotifyWake implements schedule.Notifier.
func (b *Bot) NotifyWake(ctx context.Context, userID int64, plan []event.Event) error {
	name := ""
	if sess := b.registry.Get(userID); sess != nil {
		name = sess.Name
	}
	return b.sender.SendMessage(ctx, userID, wakeText(name, b.now(), plan))
}

// WebhookHandler returns the HTTP handler for Telegram webhook updates.
// Requests must carry the configured secret token header.
func (b *Bot) WebhookHandler(secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if secret != "" && r.Header.Get("X-Telegram-Bot-Api-Secret-Token") != secret {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}

		var upd Update
		if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}

		b.HandleUpdate(r.Context(), upd)
		w.WriteHeader(http.StatusOK)
	}
}

// HandleUpdate routes one incoming update. Unknown users are ignored unless
// they are registering.
func (b *Bot) HandleUpdate(ctx context.Context, upd Update) {
	if upd.Message == nil || upd.Message.Text == "" {
		return
	}
	chatID := upd.Message.Chat.ID
	text := strings.TrimSpace(upd.Message.Text)

	sess := b.registry.Get(chatID)
	if sess == nil {
		if cmd, arg := splitCommand(text); cmd == "/register" {
			b.register(ctx, upd.Message.Chat, arg)
		}
		return
	}

	log.Printf("[INFO] received %q from %d", text, chatID)

	cmd, arg := splitCommand(text)
	switch cmd {
	case "/set":
		b.setEvent(ctx, sess, arg)
	case "/del":
		b.deleteEvent(ctx, sess, arg)
	case "/delname":
		b.deleteByName(ctx, sess, arg)
	case "/events":
		var text string
		b.sched.Do(func(*schedule.Cache) {
			text = eventListText(todaysEvents(sess, b.now()))
		})
		b.send(ctx, sess.ID, text)
	case "/schedule":
		var text string
		b.sched.Do(func(*schedule.Cache) {
			text = scheduleText(sess.Events())
		})
		b.send(ctx, sess.ID, text)
	case "/setday":
		b.setDayPrompt(ctx, sess, arg)
	case "/getday":
		b.getDay(ctx, sess, arg)
	case "/waketime":
		b.setWakeTime(ctx, sess, arg)
	case "/clear":
		sess.SetLastCommand("/clear")
		b.send(ctx, sess.ID, message("ClearConfirm"))
	case "/todo":
		b.todoCommand(ctx, sess, arg)
	case "/done":
		b.doneCommand(ctx, sess, arg)
	case "/export":
		url := fmt.Sprintf("%s/export/%d.ics", b.baseURL, sess.ID)
		b.send(ctx, sess.ID, message("ExportReady", "url", url))
	case "/register":
		b.send(ctx, sess.ID, message("AlreadyRegistered"))
	case "/help":
		b.send(ctx, sess.ID, message("Help"))
	default:
		b.handleText(ctx, sess, text)
	}
}

func (b *Bot) register(ctx context.Context, chat Chat, password string) {
	if bcrypt.CompareHashAndPassword([]byte(b.passwordHash), []byte(password)) != nil {
		log.Printf("[WARN] user %q [%d] tried to register", chat.FirstName, chat.ID)
		return
	}

	var (
		sess    *user.Session
		created bool
		err     error
	)
	b.sched.Do(func(*schedule.Cache) {
		sess, created, err = b.registry.Register(ctx, chat.ID, chat.FirstName)
		if err == nil && created {
			err = b.templates.SeedDefaults(ctx, chat.ID)
		}
	})
	if err != nil {
		log.Printf("[ERROR] register %d: %v", chat.ID, err)
		return
	}

	log.Printf("[INFO] registered user %q [%d]", chat.FirstName, chat.ID)
	b.send(ctx, sess.ID, message("RegisterSuccess"))
}

func (b *Bot) setEvent(ctx context.Context, sess *user.Session, arg string) {
	e, err := ParseEventSpec(sess.ID, arg)
	if err != nil {
		b.send(ctx, sess.ID, message("ArgumentError"))
		return
	}

	var (
		added   bool
		saveErr error
	)
	b.sched.Do(func(c *schedule.Cache) {
		added, saveErr = sess.Add(ctx, e)
		if added && saveErr == nil {
			c.Insert(e)
		}
	})

	switch {
	case saveErr != nil:
		b.send(ctx, sess.ID, message("SaveFailed", "error", saveErr.Error()))
	case !added:
		b.send(ctx, sess.ID, message("EventExists"))
	default:
		b.send(ctx, sess.ID, message("EventAdded"))
	}
}

func (b *Bot) deleteEvent(ctx context.Context, sess *user.Session, arg string) {
	when, title, info, location, err := ParseDeleteSpec(arg)
	if err != nil {
		b.send(ctx, sess.ID, message("ArgumentError"))
		return
	}

	var (
		removed []event.Event
		delErr  error
	)
	b.sched.Do(func(c *schedule.Cache) {
		removed, delErr = sess.DeleteByCriteria(ctx, when, title, info, location)
		for _, e := range removed {
			c.Evict(e)
		}
	})

	b.deleteReply(ctx, sess.ID, removed, delErr)
}

func (b *Bot) deleteByName(ctx context.Context, sess *user.Session, arg string) {
	var (
		removed []event.Event
		delErr  error
	)
	b.sched.Do(func(c *schedule.Cache) {
		removed, delErr = sess.DeleteByTitle(ctx, arg)
		for _, e := range removed {
			c.Evict(e)
		}
	})

	b.deleteReply(ctx, sess.ID, removed, delErr)
}

func (b *Bot) deleteReply(ctx context.Context, id int64, removed []event.Event, err error) {
	switch {
	case err != nil:
		b.send(ctx, id, message("SaveFailed", "error", err.Error()))
	case len(removed) == 0:
		b.send(ctx, id, message("EventNotFound"))
	default:
		b.send(ctx, id, message("EventDeleted"))
	}
}

func (b *Bot) setDayPrompt(ctx context.Context, sess *user.Session, arg string) {
	weekday, err := ParseWeekday(arg)
	if err != nil {
		b.send(ctx, sess.ID, message("WeekdayInvalid"))
		return
	}
	sess.SetLastCommand("/setday " + strings.ToLower(weekday.String()))
	b.send(ctx, sess.ID, message("SetDayPrompt", "day", weekday.String()))
}

func (b *Bot) getDay(ctx context.Context, sess *user.Session, arg string) {
	weekday, err := ParseWeekday(arg)
	if err != nil {
		b.send(ctx, sess.ID, message("WeekdayInvalid"))
		return
	}
	entries, err := b.templates.ListForWeekday(ctx, sess.ID, weekday)
	if err != nil {
		log.Printf("[ERROR] list %s templates for %d: %v", weekday, sess.ID, err)
		b.send(ctx, sess.ID, message("SaveFailed", "error", err.Error()))
		return
	}
	b.send(ctx, sess.ID, dayPlanText(weekday, entries))
}

func (b *Bot) setWakeTime(ctx context.Context, sess *user.Session, arg string) {
	hour, minute, err := user.ParseWakeTime(arg)
	if err != nil {
		b.send(ctx, sess.ID, message("WakeTimeInvalid"))
		return
	}
	wake := user.FormatWakeTime(hour, minute)

	var setErr error
	b.sched.Do(func(*schedule.Cache) {
		setErr = b.registry.SetWakeTime(ctx, sess.ID, wake)
	})
	if setErr != nil {
		b.send(ctx, sess.ID, message("SaveFailed", "error", setErr.Error()))
		return
	}
	b.send(ctx, sess.ID, message("WakeTimeSet", "time", wake))
}

func (b *Bot) todoCommand(ctx context.Context, sess *user.Session, arg string) {
	name, ok := todoListName(arg)
	if !ok {
		b.send(ctx, sess.ID, message("TodoPrompt"))
		return
	}

	var (
		items []string
		err   error
	)
	b.sched.Do(func(*schedule.Cache) {
		items, err = b.todos.Items(ctx, sess.ID, name)
	})
	if err != nil {
		b.send(ctx, sess.ID, message("SaveFailed", "error", err.Error()))
		return
	}

	sess.SetLastCommand("/todo " + name)
	b.send(ctx, sess.ID, todoListText(name, items))
}

func (b *Bot) doneCommand(ctx context.Context, sess *user.Session, arg string) {
	if strings.TrimSpace(arg) == "" {
		b.send(ctx, sess.ID, message("UnrecognisedText"))
		return
	}

	var (
		found bool
		err   error
	)
	b.sched.Do(func(*schedule.Cache) {
		today := todo.ListNameForDay(b.now())
		found, err = b.todos.ToggleChecked(ctx, sess.ID, today, arg)
		if err == nil && !found {
			found, err = b.todos.ToggleChecked(ctx, sess.ID, todo.GeneralList, arg)
		}
	})

	switch {
	case err != nil:
		b.send(ctx, sess.ID, message("SaveFailed", "error", err.Error()))
	case !found:
		b.send(ctx, sess.ID, message("DoneNotFound"))
	default:
		b.send(ctx, sess.ID, message("DoneToggled"))
	}
}

// handleText resolves plain text against the user's pending command: the
// /clear confirmation, a /setday plan, or /todo list editing.
func (b *Bot) handleText(ctx context.Context, sess *user.Session, text string) {
	last := sess.LastCommand()

	switch {
	case last == "/clear":
		b.confirmClear(ctx, sess, text)

	case strings.HasPrefix(last, "/setday "):
		b.setDayEntries(ctx, sess, strings.TrimPrefix(last, "/setday "), text)

	case strings.HasPrefix(last, "/todo "):
		b.editTodo(ctx, sess, strings.TrimPrefix(last, "/todo "), text)

	case strings.HasPrefix(text, "/"):
		b.send(ctx, sess.ID, message("UnrecognisedCommand"))

	default:
		b.send(ctx, sess.ID, message("UnrecognisedText"))
	}
}

func (b *Bot) confirmClear(ctx context.Context, sess *user.Session, text string) {
	sess.SetLastCommand("")

	if !strings.EqualFold(strings.TrimSpace(text), "yes") {
		b.send(ctx, sess.ID, message("EventsNotCleared"))
		return
	}

	var err error
	b.sched.Do(func(c *schedule.Cache) {
		err = sess.Clear(ctx)
		c.EvictOwner(sess.ID)
	})
	if err != nil {
		b.send(ctx, sess.ID, message("SaveFailed", "error", err.Error()))
		return
	}
	b.send(ctx, sess.ID, message("EventsCleared"))
}

func (b *Bot) setDayEntries(ctx context.Context, sess *user.Session, day, text string) {
	weekday, err := ParseWeekday(day)
	if err != nil {
		b.send(ctx, sess.ID, message("WeekdayInvalid"))
		return
	}

	var entries []event.Event
	for _, line := range strings.Split(strings.ReplaceAll(text, "\n", ""), ";") {
		e, err := ParseTemplateLine(sess.ID, weekday, line)
		if err != nil {
			continue
		}
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		b.send(ctx, sess.ID, message("TemplateError"))
		return
	}

	var setErr error
	b.sched.Do(func(*schedule.Cache) {
		setErr = b.templates.SetDayEntries(ctx, sess.ID, weekday, entries)
	})
	if setErr != nil {
		b.send(ctx, sess.ID, message("SaveFailed", "error", setErr.Error()))
		return
	}

	sess.SetLastCommand("")
	b.send(ctx, sess.ID, message("EventAdded"))
}

func (b *Bot) editTodo(ctx context.Context, sess *user.Session, name, text string) {
	var err error
	b.sched.Do(func(*schedule.Cache) {
		err = b.todos.AddOrRemove(ctx, sess.ID, name, text)
	})
	if err != nil {
		b.send(ctx, sess.ID, message("SaveFailed", "error", err.Error()))
		return
	}
	b.send(ctx, sess.ID, message("TodoSaved"))
}

func (b *Bot) send(ctx context.Context, chatID int64, text string) {
	if err := b.sender.SendMessage(ctx, chatID, text); err != nil {
		log.Printf("[WARN] send to %d: %v", chatID, err)
	}
}

func splitCommand(text string) (cmd, arg string) {
	fields := strings.SplitN(text, " ", 2)
	cmd = fields[0]
	if len(fields) == 2 {
		arg = strings.TrimSpace(fields[1])
	}
	return cmd, arg
}

func todaysEvents(sess *user.Session, now time.Time) []event.Event {
	var out []event.Event
	for _, e := range sess.Events() {
		if e.SameDay(now) {
			out = append(out, e)
		}
	}
	return out
}

// todoListName maps a /todo argument onto a stored list name.
func todoListName(arg string) (string, bool) {
	arg = strings.ToLower(strings.TrimSpace(arg))
	if arg == todo.GeneralList {
		return todo.GeneralList, true
	}
	if wd, err := ParseWeekday(arg); err == nil {
		return wd.String(), true
	}
	return "", false
}
