package user

import (
	"context"
	"fmt"
	"sort"

	"github.com/example/agenda/internal/store"
)

// Registry holds every registered user's session. It is populated once at
// startup and mutated only by registration and waketime changes; like the
// sessions it hands out, it relies on the scheduler tick mutex for
// serialization.
type Registry struct {
	users  store.UserRepository
	events store.EventRepository

	sessions map[int64]*Session
}

func NewRegistry(users store.UserRepository, events store.EventRepository) *Registry {
	return &Registry{
		users:    users,
		events:   events,
		sessions: make(map[int64]*Session),
	}
}

// Load reads all persisted users and their event collections.
func (r *Registry) Load(ctx context.Context) error {
	records, err := r.users.List(ctx)
	if err != nil {
		return fmt.Errorf("load users: %w", err)
	}
	for _, rec := range records {
		s := NewSession(rec, r.events)
		if err := s.LoadEvents(ctx); err != nil {
			return err
		}
		r.sessions[s.ID] = s
	}
	return nil
}

// Get returns the session for a chat ID, or nil for unknown users.
func (r *Registry) Get(id int64) *Session {
	return r.sessions[id]
}

// Sessions returns all sessions ordered by user ID.
func (r *Registry) Sessions() []*Session {
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Register creates and persists a new user with the default wake time. It
// reports false when the user already exists.
func (r *Registry) Register(ctx context.Context, id int64, name string) (*Session, bool, error) {
	if s, ok := r.sessions[id]; ok {
		return s, false, nil
	}
	rec := store.UserRecord{ID: id, Name: name, WakeTime: DefaultWakeTime}
	if err := r.users.Upsert(ctx, rec); err != nil {
		return nil, false, fmt.Errorf("register user %d: %w", id, err)
	}
	s := NewSession(rec, r.events)
	r.sessions[id] = s
	return s, true, nil
}

// SetWakeTime updates and persists a user's wake time ("HH:MM").
func (r *Registry) SetWakeTime(ctx context.Context, id int64, wake string) error {
	s, ok := r.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	prev := s.WakeTime
	s.WakeTime = wake
	rec := store.UserRecord{ID: s.ID, Name: s.Name, WakeTime: wake}
	if err := r.users.Upsert(ctx, rec); err != nil {
		s.WakeTime = prev
		return fmt.Errorf("set waketime for %d: %w", id, err)
	}
	return nil
}
