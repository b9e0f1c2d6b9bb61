package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/example/agenda/internal/event"
	"github.com/example/agenda/internal/user"
)

// ExpandFunc supplies recurrence-derived occurrences for a user on a given
// date. It is consulted during cache construction; a nil ExpandFunc means
// recurring templates contribute nothing.
type ExpandFunc func(ctx context.Context, userID int64, day time.Time) ([]event.Event, error)

// Cache is the derived working set of events relevant to one calendar date,
// aggregated across all users. It holds value copies, never shared pointers:
// membership is recomputed by structural identity, so a store compaction can
// never leave it with a dangling entry. It is rebuilt on every day rollover
// and discarded afterwards, never persisted.
//
// Cache methods assume the caller holds the scheduler's tick lock (see
// Scheduler.Do).
type Cache struct {
	day    time.Time
	events []event.Event
}

// Day returns the calendar date the cache was built for.
func (c *Cache) Day() time.Time {
	return c.day
}

// Events returns the cached events. The returned slice must not be retained
// across ticks.
func (c *Cache) Events() []event.Event {
	return c.events
}

// Insert adds an event when it falls on the cache's date. Used when a user
// creates an event for today between rollovers.
func (c *Cache) Insert(e event.Event) {
	if e.SameDay(c.day) {
		c.events = append(c.events, e)
	}
}

// Evict removes every structurally equal entry, so a reminder can never
// fire for an event the user just deleted.
func (c *Cache) Evict(e event.Event) {
	kept := c.events[:0]
	for _, existing := range c.events {
		if existing.Equal(e) {
			continue
		}
		kept = append(kept, existing)
	}
	c.events = kept
}

// EvictOwner removes every entry belonging to one user. Used when a user
// clears their whole collection.
func (c *Cache) EvictOwner(owner int64) {
	kept := c.events[:0]
	for _, existing := range c.events {
		if existing.Owner == owner {
			continue
		}
		kept = append(kept, existing)
	}
	c.events = kept
}

// compact drops entries whose soft-delete flag was raised during the
// current tick.
func (c *Cache) compact() {
	kept := c.events[:0]
	for _, e := range c.events {
		if e.Deleted {
			continue
		}
		kept = append(kept, e)
	}
	c.events = kept
}

// BuildForToday constructs the cache contents for a date: every store is
// cleaned first, then its events dated today are collected, then the
// recurrence expansion hook contributes template occurrences. Failures for
// one user do not prevent the rest of the cache from being built; the
// joined error reports what went wrong.
func BuildForToday(ctx context.Context, sessions []*user.Session, expand ExpandFunc, today time.Time) ([]event.Event, error) {
	var (
		out  []event.Event
		errs []error
	)
	for _, sess := range sessions {
		if err := sess.Clean(ctx, today); err != nil {
			errs = append(errs, fmt.Errorf("clean store for %d: %w", sess.ID, err))
		}
		for _, e := range sess.Events() {
			if e.SameDay(today) {
				out = append(out, e)
			}
		}
		if expand == nil {
			continue
		}
		occurrences, err := expand(ctx, sess.ID, today)
		if err != nil {
			errs = append(errs, fmt.Errorf("expand templates for %d: %w", sess.ID, err))
			continue
		}
		out = append(out, occurrences...)
	}
	return out, errors.Join(errs...)
}
