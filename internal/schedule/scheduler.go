package schedule

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/example/agenda/internal/event"
	"github.com/example/agenda/internal/metrics"
	"github.com/example/agenda/internal/user"
)

const (
	// DefaultInterval is the polling cadence. It must stay at or below one
	// minute or reminders scheduled on minute boundaries can be skipped.
	DefaultInterval = 15 * time.Second

	// DefaultMatchWindow is how wide the minute comparison is. One minute
	// means exact HH:MM equality.
	DefaultMatchWindow = time.Minute

	deliveryTimeout = 10 * time.Second
)

// Notifier delivers notifications to users. Errors are reported back so the
// scheduler can decide lifecycle transitions, but they are never fatal.
type Notifier interface {
	NotifyReminder(ctx context.Context, e event.Event) error
	NotifyWake(ctx context.Context, userID int64, plan []event.Event) error
}

// Maintenance is a once-per-day hook run on a calendar transition.
type Maintenance func(ctx context.Context, day time.Time) error

// Config carries the scheduler's tunable parameters.
type Config struct {
	Interval    time.Duration
	MatchWindow time.Duration
}

// Scheduler is the polling loop at the heart of the engine. Exactly one tick
// runs at a time: a tick that fires while the previous one is still in
// flight is dropped. The chat layer shares the same lock through Do, so no
// store is ever mutated concurrently with a tick that touches it.
type Scheduler struct {
	mu sync.Mutex

	registry    *user.Registry
	expand      ExpandFunc
	notifier    Notifier
	maintenance []Maintenance

	interval    time.Duration
	matchWindow time.Duration
	now         func() time.Time

	cache    Cache
	lastWake map[int64]string
	fired    map[string]bool
}

// New builds a scheduler. The expansion hook may be nil.
func New(registry *user.Registry, expand ExpandFunc, notifier Notifier, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MatchWindow < time.Minute {
		cfg.MatchWindow = DefaultMatchWindow
	}
	return &Scheduler{
		registry:    registry,
		expand:      expand,
		notifier:    notifier,
		interval:    cfg.Interval,
		matchWindow: cfg.MatchWindow,
		now:         time.Now,
		lastWake:    make(map[int64]string),
		fired:       make(map[string]bool),
	}
}

// SetNotifier installs the delivery collaborator. It must be called before
// Run; the bot and the scheduler reference each other, so one of them has to
// be attached after construction.
func (s *Scheduler) SetNotifier(n Notifier) {
	s.notifier = n
}

// OnRollover registers a maintenance hook. Hooks run exactly once per
// calendar-day transition, after the cache has been rebuilt.
func (s *Scheduler) OnRollover(m Maintenance) {
	s.maintenance = append(s.maintenance, m)
}

// Run builds the initial cache and polls until the context is canceled. An
// in-flight tick always finishes; cancellation only prevents new ticks from
// starting.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	now := s.now()
	s.rebuild(ctx, now)
	s.cache.day = now
	s.mu.Unlock()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one scheduling pass. If the previous tick is still running the
// call is dropped rather than queued.
func (s *Scheduler) Tick(ctx context.Context) {
	if !s.mu.TryLock() {
		metrics.ObserveTick("skipped")
		return
	}
	defer s.mu.Unlock()

	s.tick(ctx, s.now())
	metrics.ObserveTick("run")
}

// Do runs fn while holding the tick lock, giving the chat layer exclusive
// access to the sessions and the daily cache between ticks.
func (s *Scheduler) Do(fn func(c *Cache)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.cache)
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	// Rollover detection happens first but executes last, so a reminder due
	// in the tick that crosses midnight still fires before the cache is
	// rebuilt for the new day.
	newDay := !sameDate(now, s.cache.day)

	s.wakeChecks(ctx, now)
	s.reminderChecks(ctx, now)

	if newDay {
		s.rebuild(ctx, now)
		s.cache.day = now
		s.fired = make(map[string]bool)
		metrics.ObserveRollover()
		for _, m := range s.maintenance {
			if err := m(ctx, now); err != nil {
				log.Printf("[WARN] rollover maintenance: %v", err)
			}
		}
	}

	s.cache.compact()
	metrics.SetDailyCacheSize(len(s.cache.events))
}

// wakeChecks sends the morning day plan to every user whose wake time
// matches the current minute. Deliveries run concurrently across users; a
// per-user minute latch keeps a sub-minute tick cadence from firing the
// same minute twice.
func (s *Scheduler) wakeChecks(ctx context.Context, now time.Time) {
	minute := minuteKey(now)

	var wg sync.WaitGroup
	for _, sess := range s.registry.Sessions() {
		hour, min, err := user.ParseWakeTime(sess.WakeTime)
		if err != nil {
			log.Printf("[WARN] user %d has invalid wake time %q", sess.ID, sess.WakeTime)
			continue
		}
		if now.Hour() != hour || now.Minute() != min || s.lastWake[sess.ID] == minute {
			continue
		}
		s.lastWake[sess.ID] = minute

		plan := s.dayPlan(ctx, sess, now)
		wg.Add(1)
		go func(id int64, plan []event.Event) {
			defer wg.Done()
			dctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
			defer cancel()
			if err := s.notifier.NotifyWake(dctx, id, plan); err != nil {
				metrics.ObserveNotification("wake", "error")
				log.Printf("[WARN] wake notification for %d: %v", id, err)
				return
			}
			metrics.ObserveNotification("wake", "ok")
		}(sess.ID, plan)
	}
	wg.Wait()
}

// reminderChecks fires reminders for cached events whose notification
// instant matches the current minute. Deliveries run concurrently across
// users but sequentially per user; lifecycle transitions (soft-delete and
// compaction for one-off events) happen only after a successful delivery.
func (s *Scheduler) reminderChecks(ctx context.Context, now time.Time) {
	due := make(map[int64][]int)
	for i, e := range s.cache.events {
		if e.Deleted || s.fired[identity(e)] {
			continue
		}
		if s.matches(now, e) {
			due[e.Owner] = append(due[e.Owner], i)
		}
	}
	if len(due) == 0 {
		return
	}

	delivered := make([]bool, len(s.cache.events))

	var wg sync.WaitGroup
	for _, indices := range due {
		wg.Add(1)
		go func(indices []int) {
			defer wg.Done()
			for _, i := range indices {
				e := s.cache.events[i]
				dctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
				err := s.notifier.NotifyReminder(dctx, e)
				cancel()
				if err != nil {
					metrics.ObserveNotification("reminder", "error")
					log.Printf("[WARN] reminder for %d (%q): %v", e.Owner, e.Title, err)
					continue
				}
				metrics.ObserveNotification("reminder", "ok")
				delivered[i] = true
			}
		}(indices)
	}
	wg.Wait()

	for i, ok := range delivered {
		if !ok {
			continue
		}
		e := s.cache.events[i]
		s.fired[identity(e)] = true
		if e.Recurrence != event.Once {
			continue
		}
		// Mark every structurally equal instance across all stores; there
		// should be exactly one, but duplicates are handled as a group.
		for _, sess := range s.registry.Sessions() {
			sess.MarkDeleted(e)
		}
		if owner := s.registry.Get(e.Owner); owner != nil {
			if err := owner.Clean(ctx, s.now()); err != nil {
				log.Printf("[WARN] clean store for %d: %v", e.Owner, err)
			}
		}
		s.cache.events[i].Deleted = true
	}
}

// dayPlan assembles the wake message contents: today's template occurrences
// plus today's concrete events, sorted by time.
func (s *Scheduler) dayPlan(ctx context.Context, sess *user.Session, now time.Time) []event.Event {
	var plan []event.Event
	if s.expand != nil {
		occurrences, err := s.expand(ctx, sess.ID, now)
		if err != nil {
			log.Printf("[WARN] expand day plan for %d: %v", sess.ID, err)
		}
		plan = append(plan, occurrences...)
	}
	for _, e := range sess.Events() {
		if e.SameDay(now) {
			plan = append(plan, e)
		}
	}
	event.Sort(plan)
	return plan
}

// matches reports whether the event's notification instant (when minus
// reminder offset) has been reached, comparing at minute resolution within
// the configured window.
func (s *Scheduler) matches(now time.Time, e event.Event) bool {
	shifted := now.Add(e.ReminderOffset)
	d := minuteOfDay(shifted) - minuteOfDay(e.When)
	return d >= 0 && d < int(s.matchWindow/time.Minute)
}

func (s *Scheduler) rebuild(ctx context.Context, now time.Time) {
	events, err := BuildForToday(ctx, s.registry.Sessions(), s.expand, now)
	if err != nil {
		log.Printf("[WARN] daily cache rebuild: %v", err)
	}
	s.cache.events = events
	metrics.SetDailyCacheSize(len(events))
}

// identity keys an event for the once-per-day delivery latch. The latch is
// cleared on rollover, so a recurring occurrence can fire again the next
// day while a widened match window or sub-minute tick cadence cannot
// deliver the same reminder twice within one day.
func identity(e event.Event) string {
	return fmt.Sprintf("%d|%d|%s|%s", e.Owner, e.When.Unix(), e.Title, e.Recurrence)
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func minuteKey(t time.Time) string {
	return t.Format("2006-01-02 15:04")
}

func sameDate(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
