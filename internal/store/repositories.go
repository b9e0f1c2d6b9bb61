package store

import (
	"context"
	"time"

	"github.com/example/agenda/internal/event"
)

// UserRepository defines persistence operations for registered users.
type UserRepository interface {
	List(ctx context.Context) ([]UserRecord, error)
	Upsert(ctx context.Context, rec UserRecord) error
}

// EventRepository handles the per-user event collection. Writes are always
// full overwrites of a user's collection inside a single transaction, so a
// crash mid-save never corrupts the previously persisted state.
type EventRepository interface {
	ListEvents(ctx context.Context, userID int64) ([]event.Event, error)
	ReplaceEvents(ctx context.Context, userID int64, events []event.Event) error
}

// TemplateRepository stores the recurring template events, keyed by the
// weekday their template moment falls on.
type TemplateRepository interface {
	ListAll(ctx context.Context, userID int64) ([]event.Event, error)
	ListForWeekday(ctx context.Context, userID int64, weekday time.Weekday) ([]event.Event, error)
	ReplaceForWeekday(ctx context.Context, userID int64, weekday time.Weekday, events []event.Event) error
}

// TodoRepository stores named to-do lists (one per weekday plus "general").
type TodoRepository interface {
	GetList(ctx context.Context, userID int64, name string) ([]string, error)
	SaveList(ctx context.Context, userID int64, name string, items []string) error
}
