package event

import (
	"sort"
	"strings"
	"time"
)

// DefaultReminderOffset is applied when an event is created without an
// explicit reminder lead time.
const DefaultReminderOffset = 60 * time.Minute

// Recurrence describes how often an event repeats.
type Recurrence int

const (
	Once Recurrence = iota
	Daily
	Weekly
	Monthly
	Yearly
)

var recurrenceNames = map[Recurrence]string{
	Once:    "once",
	Daily:   "daily",
	Weekly:  "weekly",
	Monthly: "monthly",
	Yearly:  "yearly",
}

func (r Recurrence) String() string {
	if name, ok := recurrenceNames[r]; ok {
		return name
	}
	return "once"
}

// ParseRecurrence maps a stored recurrence name back to its kind. Unknown
// values fall back to Once so a corrupt row degrades to the least surprising
// behavior.
func ParseRecurrence(s string) Recurrence {
	for kind, name := range recurrenceNames {
		if name == s {
			return kind
		}
	}
	return Once
}

// Event is a single calendar entry for one user. For recurring events When
// is a template moment: only its time of day (and, for weekly events, its
// weekday) is meaningful. Fields are never mutated after creation except the
// soft-delete flag.
type Event struct {
	Owner          int64
	When           time.Time
	Title          string
	Info           string
	Location       string
	ReminderOffset time.Duration
	Recurrence     Recurrence
	Deleted        bool
}

// New builds an event with the default reminder offset.
func New(owner int64, when time.Time, title, info, location string, recurrence Recurrence) Event {
	return Event{
		Owner:          owner,
		When:           when,
		Title:          title,
		Info:           info,
		Location:       location,
		ReminderOffset: DefaultReminderOffset,
		Recurrence:     recurrence,
	}
}

// IsZero reports whether the event carries no identity at all. Zero events
// are rejected by store operations.
func (e Event) IsZero() bool {
	return e.Owner == 0 && e.When.IsZero() && e.Title == ""
}

// Equal reports structural equality. The soft-delete flag is excluded: a
// marked event still identifies the same entry.
func (e Event) Equal(o Event) bool {
	return e.Owner == o.Owner &&
		e.When.Equal(o.When) &&
		e.Title == o.Title &&
		e.Info == o.Info &&
		e.Location == o.Location &&
		e.ReminderOffset == o.ReminderOffset &&
		e.Recurrence == o.Recurrence
}

// SameDay reports whether the event's template moment falls on the given
// calendar date.
func (e Event) SameDay(t time.Time) bool {
	y1, m1, d1 := e.When.Date()
	y2, m2, d2 := t.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// TitleMatches compares titles case-insensitively with all spaces removed,
// so "Team Meeting " matches "teammeeting".
func (e Event) TitleMatches(title string) bool {
	return NormalizeTitle(e.Title) == NormalizeTitle(title)
}

// NormalizeTitle lowercases a title and strips whitespace for fuzzy
// delete-by-name matching.
func NormalizeTitle(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "")
}

// OnDate returns a copy of the event re-anchored to the given calendar date,
// keeping its time of day. Used when a recurring template is expanded into a
// concrete occurrence for "today".
func (e Event) OnDate(day time.Time) Event {
	out := e
	out.When = time.Date(day.Year(), day.Month(), day.Day(),
		e.When.Hour(), e.When.Minute(), 0, 0, day.Location())
	return out
}

// Sort orders events by their template moment, earliest first. The input
// slice is sorted in place.
func Sort(events []Event) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].When.Before(events[j].When)
	})
}
