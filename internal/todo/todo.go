// Package todo manages the per-weekday and general to-do lists that ride
// along with the daily schedule. The scheduler's day-rollover hook calls
// Rollover to retire stale lists.
package todo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/example/agenda/internal/store"
)

// GeneralList is the list that is not bound to a weekday.
const GeneralList = "general"

// CheckedPrefix marks a completed item.
const CheckedPrefix = "✅ "

// Service wraps the todo repository with list semantics.
type Service struct {
	repo store.TodoRepository
}

func NewService(repo store.TodoRepository) *Service {
	return &Service{repo: repo}
}

// ListNameForDay maps a date onto its weekday list name ("Monday" ...).
func ListNameForDay(t time.Time) string {
	return t.Weekday().String()
}

// Items returns the named list.
func (s *Service) Items(ctx context.Context, userID int64, name string) ([]string, error) {
	return s.repo.GetList(ctx, userID, name)
}

// AddOrRemove appends the item to the list, or removes it when it is
// already present (checked or not).
func (s *Service) AddOrRemove(ctx context.Context, userID int64, name, item string) error {
	item = strings.TrimSpace(item)
	if item == "" {
		return nil
	}
	items, err := s.repo.GetList(ctx, userID, name)
	if err != nil {
		return err
	}

	kept := items[:0]
	removed := false
	for _, existing := range items {
		if existing == item || existing == CheckedPrefix+item {
			removed = true
			continue
		}
		kept = append(kept, existing)
	}
	if !removed {
		kept = append(kept, item)
	}
	return s.repo.SaveList(ctx, userID, name, kept)
}

// ToggleChecked flips the completion mark on an item. It reports false when
// the item is not on the list.
func (s *Service) ToggleChecked(ctx context.Context, userID int64, name, item string) (bool, error) {
	item = strings.TrimSpace(item)
	items, err := s.repo.GetList(ctx, userID, name)
	if err != nil {
		return false, err
	}

	found := false
	for i, existing := range items {
		switch existing {
		case item:
			items[i] = CheckedPrefix + item
			found = true
		case CheckedPrefix + item:
			items[i] = strings.TrimPrefix(existing, CheckedPrefix)
			found = true
		}
	}
	if !found {
		return false, nil
	}
	return true, s.repo.SaveList(ctx, userID, name, items)
}

// Rollover is the once-per-day maintenance run on a calendar transition:
// the weekday list from two days ago is emptied and completed items are
// purged from the general list. Failures for one user do not stop the
// others.
func (s *Service) Rollover(ctx context.Context, userIDs []int64, day time.Time) error {
	stale := ListNameForDay(day.AddDate(0, 0, -2))

	var errs []error
	for _, id := range userIDs {
		if err := s.repo.SaveList(ctx, id, stale, nil); err != nil {
			errs = append(errs, fmt.Errorf("clear %s list for %d: %w", stale, id, err))
			continue
		}

		general, err := s.repo.GetList(ctx, id, GeneralList)
		if err != nil {
			errs = append(errs, fmt.Errorf("load general list for %d: %w", id, err))
			continue
		}
		kept := general[:0]
		for _, item := range general {
			if strings.HasPrefix(item, CheckedPrefix) {
				continue
			}
			kept = append(kept, item)
		}
		if err := s.repo.SaveList(ctx, id, GeneralList, kept); err != nil {
			errs = append(errs, fmt.Errorf("purge general list for %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}
