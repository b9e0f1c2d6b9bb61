// Package template manages the recurring event templates that supply
// "today's" occurrences to the daily cache. Recurring events are stored as
// template rows keyed by weekday rather than as concrete dated entries; the
// scheduler consults ExpandForDate when it rebuilds the cache.
package template

import (
	"context"
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/example/agenda/internal/event"
	"github.com/example/agenda/internal/store"
)

// anchorMonday is the canonical week all weekly templates are anchored to:
// Monday, 2000-01-03. Only the weekday and time of day of a template moment
// carry meaning.
var anchorMonday = time.Date(2000, time.January, 3, 0, 0, 0, 0, time.Local)

// DefaultSeedTitle is the weekly template seeded for each weekday when a
// user first registers.
const DefaultSeedTitle = "Morning routine"

// Store wraps the template repository with expansion and seeding logic.
type Store struct {
	repo store.TemplateRepository
}

func NewStore(repo store.TemplateRepository) *Store {
	return &Store{repo: repo}
}

// Anchor returns the canonical template moment for a weekday at the given
// time of day.
func Anchor(weekday time.Weekday, hour, minute int) time.Time {
	offset := (int(weekday) - int(time.Monday) + 7) % 7
	return anchorMonday.AddDate(0, 0, offset).
		Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

// SeedDefaults creates the initial weekly plan for a new user: one
// "Morning routine" entry per weekday at 09:00.
func (s *Store) SeedDefaults(ctx context.Context, userID int64) error {
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		seed := event.New(userID, Anchor(wd, 9, 0), DefaultSeedTitle, "", "", event.Weekly)
		if err := s.repo.ReplaceForWeekday(ctx, userID, wd, []event.Event{seed}); err != nil {
			return fmt.Errorf("seed templates for %d: %w", userID, err)
		}
	}
	return nil
}

// ListForWeekday returns the stored template events for one weekday.
func (s *Store) ListForWeekday(ctx context.Context, userID int64, weekday time.Weekday) ([]event.Event, error) {
	return s.repo.ListForWeekday(ctx, userID, weekday)
}

// SetDayEntries merges new template events into a weekday's plan. An entry
// matching an existing template (same moment, and an empty or equal title)
// toggles it off instead; everything else is appended. This mirrors how a
// repeated /setday line removes the entry it previously created.
func (s *Store) SetDayEntries(ctx context.Context, userID int64, weekday time.Weekday, entries []event.Event) error {
	existing, err := s.repo.ListForWeekday(ctx, userID, weekday)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		matched := false
		kept := existing[:0]
		for _, old := range existing {
			if old.When.Equal(entry.When) && old.Recurrence == entry.Recurrence &&
				(old.Title == "" || old.Title == entry.Title) {
				matched = true
				continue
			}
			kept = append(kept, old)
		}
		existing = kept
		if !matched {
			existing = append(existing, entry)
		}
	}

	if err := s.repo.ReplaceForWeekday(ctx, userID, weekday, existing); err != nil {
		return err
	}
	return nil
}

// ExpandForDate returns the user's recurring template events that occur on
// the given date, re-anchored onto that date so they can join the daily
// cache alongside concrete one-off events.
func (s *Store) ExpandForDate(ctx context.Context, userID int64, day time.Time) ([]event.Event, error) {
	templates, err := s.repo.ListAll(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("expand templates for %d: %w", userID, err)
	}

	var out []event.Event
	for _, tmpl := range templates {
		if tmpl.Deleted {
			continue
		}
		ok, err := OccursOn(tmpl, day)
		if err != nil {
			return nil, fmt.Errorf("expand templates for %d: %w", userID, err)
		}
		if ok {
			out = append(out, tmpl.OnDate(day))
		}
	}
	return out, nil
}

// OccursOn evaluates whether a recurring event's rule produces an occurrence
// on the given calendar date. One-off events match by exact date.
func OccursOn(e event.Event, day time.Time) (bool, error) {
	if e.Recurrence == event.Once {
		return e.SameDay(day), nil
	}

	freq, ok := frequencies[e.Recurrence]
	if !ok {
		return false, fmt.Errorf("unknown recurrence %v", e.Recurrence)
	}

	rule, err := rrule.NewRRule(rrule.ROption{Freq: freq, Dtstart: e.When})
	if err != nil {
		return false, fmt.Errorf("build rule for %q: %w", e.Title, err)
	}

	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	dayEnd := dayStart.Add(24*time.Hour - time.Nanosecond)
	return len(rule.Between(dayStart, dayEnd, true)) > 0, nil
}

var frequencies = map[event.Recurrence]rrule.Frequency{
	event.Daily:   rrule.DAILY,
	event.Weekly:  rrule.WEEKLY,
	event.Monthly: rrule.MONTHLY,
	event.Yearly:  rrule.YEARLY,
}
