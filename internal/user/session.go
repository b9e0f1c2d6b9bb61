package user

import (
	"context"
	"fmt"
	"time"

	"github.com/example/agenda/internal/event"
	"github.com/example/agenda/internal/store"
)

// DefaultWakeTime is assigned to newly registered users.
const DefaultWakeTime = "09:00"

// expiry is how far in the past a one-off event may lie before Clean marks
// it for removal.
const expiry = 24 * time.Hour

// Session is one registered user together with the event collection that
// user exclusively owns. Mutating operations write the whole collection
// through to the persistence collaborator immediately; on a write failure
// the in-memory state keeps the attempted change and the error is returned
// to the caller (no automatic reconciliation).
//
// Sessions are not safe for concurrent use on their own. The scheduler's
// tick mutex serializes all access; the chat layer runs its mutations under
// the same guard.
type Session struct {
	ID       int64
	Name     string
	WakeTime string

	lastCommand string
	events      []event.Event
	repo        store.EventRepository
}

// NewSession wraps a persisted user record. Events must be attached with
// LoadEvents before use.
func NewSession(rec store.UserRecord, repo store.EventRepository) *Session {
	return &Session{
		ID:       rec.ID,
		Name:     rec.Name,
		WakeTime: rec.WakeTime,
		repo:     repo,
	}
}

// LoadEvents replaces the in-memory collection with the persisted one.
func (s *Session) LoadEvents(ctx context.Context) error {
	events, err := s.repo.ListEvents(ctx, s.ID)
	if err != nil {
		return fmt.Errorf("load events for %d: %w", s.ID, err)
	}
	s.events = events
	return nil
}

// Add appends the event and persists the collection. It reports false
// without persisting when the event is zero or an identical event already
// exists.
func (s *Session) Add(ctx context.Context, e event.Event) (bool, error) {
	if e.IsZero() {
		return false, nil
	}
	for _, existing := range s.events {
		if existing.Equal(e) {
			return false, nil
		}
	}
	s.events = append(s.events, e)
	return true, s.persist(ctx)
}

// Remove deletes every structurally equal occurrence and reports whether
// anything was removed. Duplicates are treated as a group.
func (s *Session) Remove(ctx context.Context, e event.Event) (bool, error) {
	kept := s.events[:0]
	removed := false
	for _, existing := range s.events {
		if existing.Equal(e) {
			removed = true
			continue
		}
		kept = append(kept, existing)
	}
	s.events = kept
	if !removed {
		return false, nil
	}
	return true, s.persist(ctx)
}

// MarkDeleted sets the soft-delete flag on every structurally equal event
// and returns how many were marked. The change is in-memory only; a
// following Clean persists it.
func (s *Session) MarkDeleted(e event.Event) int {
	n := 0
	for i := range s.events {
		if s.events[i].Equal(e) && !s.events[i].Deleted {
			s.events[i].Deleted = true
			n++
		}
	}
	return n
}

// Clean marks every one-off event more than 24 hours in the past, then
// physically drops all soft-deleted entries and persists. It is idempotent
// and safe to call on every access.
func (s *Session) Clean(ctx context.Context, now time.Time) error {
	kept := s.events[:0]
	for _, e := range s.events {
		if e.Recurrence == event.Once && !e.Deleted && e.When.Add(expiry).Before(now) {
			e.Deleted = true
		}
		if e.Deleted {
			continue
		}
		kept = append(kept, e)
	}
	s.events = kept
	return s.persist(ctx)
}

// Events returns copies of the live (non-deleted) events. Ordering follows
// insertion; callers sort by time where presentation order matters.
func (s *Session) Events() []event.Event {
	out := make([]event.Event, 0, len(s.events))
	for _, e := range s.events {
		if e.Deleted {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Clear empties the collection and persists. Irreversible.
func (s *Session) Clear(ctx context.Context) error {
	s.events = nil
	return s.persist(ctx)
}

// DeleteByCriteria removes all one-off events matching the exact moment and
// every supplied (non-nil) field, returning the removed events so callers
// can evict them from the daily cache.
func (s *Session) DeleteByCriteria(ctx context.Context, when time.Time, title, info, location *string) ([]event.Event, error) {
	var matched []event.Event
	for _, e := range s.events {
		if e.Recurrence != event.Once || !e.When.Equal(when) {
			continue
		}
		if title != nil && e.Title != *title {
			continue
		}
		if info != nil && e.Info != *info {
			continue
		}
		if location != nil && e.Location != *location {
			continue
		}
		matched = append(matched, e)
	}
	return s.removeAll(ctx, matched)
}

// DeleteByTitle removes all one-off events whose title matches
// case-insensitively with whitespace stripped.
func (s *Session) DeleteByTitle(ctx context.Context, title string) ([]event.Event, error) {
	if event.NormalizeTitle(title) == "" {
		return nil, nil
	}
	var matched []event.Event
	for _, e := range s.events {
		if e.Recurrence == event.Once && e.TitleMatches(title) {
			matched = append(matched, e)
		}
	}
	return s.removeAll(ctx, matched)
}

func (s *Session) removeAll(ctx context.Context, matched []event.Event) ([]event.Event, error) {
	if len(matched) == 0 {
		return nil, nil
	}
	for _, e := range matched {
		if _, err := s.Remove(ctx, e); err != nil {
			return matched, err
		}
	}
	return matched, nil
}

// LastCommand returns the last slash command this user issued, used for the
// two-step flows (/setday, /clear confirmation, /todo).
func (s *Session) LastCommand() string {
	return s.lastCommand
}

// SetLastCommand records the pending slash command.
func (s *Session) SetLastCommand(cmd string) {
	s.lastCommand = cmd
}

func (s *Session) persist(ctx context.Context) error {
	if err := s.repo.ReplaceEvents(ctx, s.ID, s.events); err != nil {
		return fmt.Errorf("persist events for %d: %w", s.ID, err)
	}
	return nil
}
