package user

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/agenda/internal/event"
	"github.com/example/agenda/internal/store"
)

// fakeEventRepo records the last persisted collection and can be told to
// fail writes.
type fakeEventRepo struct {
	saved    map[int64][]event.Event
	failNext error
	writes   int
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{saved: make(map[int64][]event.Event)}
}

func (f *fakeEventRepo) ListEvents(_ context.Context, userID int64) ([]event.Event, error) {
	return append([]event.Event(nil), f.saved[userID]...), nil
}

func (f *fakeEventRepo) ReplaceEvents(_ context.Context, userID int64, events []event.Event) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.writes++
	f.saved[userID] = append([]event.Event(nil), events...)
	return nil
}

func at(day, hour, minute int) time.Time {
	return time.Date(2026, time.March, day, hour, minute, 0, 0, time.Local)
}

func newTestSession(repo store.EventRepository) *Session {
	return NewSession(store.UserRecord{ID: 7, Name: "Ada", WakeTime: DefaultWakeTime}, repo)
}

func TestAddPersistsAndRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := newFakeEventRepo()
	s := newTestSession(repo)

	e := event.New(7, at(10, 14, 0), "Dentist", "", "", event.Once)

	added, err := s.Add(ctx, e)
	if err != nil || !added {
		t.Fatalf("Add = (%v, %v), want (true, nil)", added, err)
	}
	if len(repo.saved[7]) != 1 {
		t.Fatalf("persisted %d events, want 1", len(repo.saved[7]))
	}

	added, err = s.Add(ctx, e)
	if err != nil || added {
		t.Fatalf("duplicate Add = (%v, %v), want (false, nil)", added, err)
	}
	if repo.writes != 1 {
		t.Errorf("duplicate Add wrote to the repo (%d writes)", repo.writes)
	}
}

func TestAddRejectsZeroEvent(t *testing.T) {
	repo := newFakeEventRepo()
	s := newTestSession(repo)

	added, err := s.Add(context.Background(), event.Event{})
	if err != nil || added {
		t.Fatalf("Add(zero) = (%v, %v), want (false, nil)", added, err)
	}
	if repo.writes != 0 {
		t.Error("zero event must not be persisted")
	}
}

func TestRemoveDeletesAllEqualOccurrences(t *testing.T) {
	ctx := context.Background()
	repo := newFakeEventRepo()
	s := newTestSession(repo)

	e := event.New(7, at(10, 14, 0), "Dentist", "", "", event.Once)
	other := event.New(7, at(11, 9, 0), "Gym", "", "", event.Once)
	s.events = []event.Event{e, other, e}

	removed, err := s.Remove(ctx, e)
	if err != nil || !removed {
		t.Fatalf("Remove = (%v, %v), want (true, nil)", removed, err)
	}
	if got := s.Events(); len(got) != 1 || got[0].Title != "Gym" {
		t.Fatalf("remaining events = %v, want only Gym", got)
	}

	removed, err = s.Remove(ctx, e)
	if err != nil || removed {
		t.Fatalf("second Remove = (%v, %v), want (false, nil)", removed, err)
	}
}

func TestCleanExpiresStaleOneOffEvents(t *testing.T) {
	ctx := context.Background()
	repo := newFakeEventRepo()
	s := newTestSession(repo)

	now := at(12, 12, 0)
	stale := event.New(7, now.Add(-25*time.Hour), "Old", "", "", event.Once)
	fresh := event.New(7, now.Add(-23*time.Hour), "Recent", "", "", event.Once)
	recurring := event.New(7, now.Add(-48*time.Hour), "Weekly", "", "", event.Weekly)
	s.events = []event.Event{stale, fresh, recurring}

	if err := s.Clean(ctx, now); err != nil {
		t.Fatalf("Clean: %v", err)
	}

	got := s.Events()
	if len(got) != 2 {
		t.Fatalf("got %d events after Clean, want 2", len(got))
	}
	for _, e := range got {
		if e.Title == "Old" {
			t.Error("event older than 24h survived Clean")
		}
	}
	if len(repo.saved[7]) != 2 {
		t.Errorf("persisted %d events, want 2", len(repo.saved[7]))
	}
}

func TestCleanDropsSoftDeleted(t *testing.T) {
	ctx := context.Background()
	repo := newFakeEventRepo()
	s := newTestSession(repo)

	now := at(12, 12, 0)
	e := event.New(7, now.Add(time.Hour), "Soon", "", "", event.Once)
	s.events = []event.Event{e}

	if n := s.MarkDeleted(e); n != 1 {
		t.Fatalf("MarkDeleted = %d, want 1", n)
	}
	if len(s.Events()) != 0 {
		t.Fatal("marked event still visible through Events")
	}

	if err := s.Clean(ctx, now); err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if len(repo.saved[7]) != 0 {
		t.Error("soft-deleted event survived compaction")
	}
}

func TestSaveFailureKeepsMemoryState(t *testing.T) {
	ctx := context.Background()
	repo := newFakeEventRepo()
	s := newTestSession(repo)

	repo.failNext = errors.New("connection reset")
	e := event.New(7, at(10, 14, 0), "Dentist", "", "", event.Once)

	added, err := s.Add(ctx, e)
	if !added || err == nil {
		t.Fatalf("Add = (%v, %v), want (true, error)", added, err)
	}
	// Memory keeps the attempted change; no reconciliation.
	if len(s.Events()) != 1 {
		t.Fatal("in-memory collection lost the event after a failed save")
	}
	if len(repo.saved[7]) != 0 {
		t.Fatal("failed save must not persist")
	}
}

func TestDeleteByCriteria(t *testing.T) {
	ctx := context.Background()
	repo := newFakeEventRepo()
	s := newTestSession(repo)

	when := at(10, 14, 0)
	a := event.New(7, when, "Dentist", "checkup", "Main St", event.Once)
	b := event.New(7, when, "Dentist", "other", "Main St", event.Once)
	weekly := event.New(7, when, "Dentist", "checkup", "Main St", event.Weekly)
	s.events = []event.Event{a, b, weekly}

	info := "checkup"
	removed, err := s.DeleteByCriteria(ctx, when, nil, &info, nil)
	if err != nil {
		t.Fatalf("DeleteByCriteria: %v", err)
	}
	if len(removed) != 1 || !removed[0].Equal(a) {
		t.Fatalf("removed = %v, want exactly the matching one-off", removed)
	}
	// Recurring events are never deleted by criteria.
	if got := s.Events(); len(got) != 2 {
		t.Fatalf("%d events remain, want 2", len(got))
	}
}

func TestDeleteByTitle(t *testing.T) {
	ctx := context.Background()
	repo := newFakeEventRepo()
	s := newTestSession(repo)

	a := event.New(7, at(10, 14, 0), "Team Meeting", "", "", event.Once)
	b := event.New(7, at(11, 14, 0), "teammeeting", "", "", event.Once)
	c := event.New(7, at(12, 14, 0), "Gym", "", "", event.Once)
	s.events = []event.Event{a, b, c}

	removed, err := s.DeleteByTitle(ctx, " TEAM meeting ")
	if err != nil {
		t.Fatalf("DeleteByTitle: %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("removed %d events, want 2", len(removed))
	}

	removed, err = s.DeleteByTitle(ctx, "   ")
	if err != nil || removed != nil {
		t.Fatalf("blank title delete = (%v, %v), want (nil, nil)", removed, err)
	}
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	repo := newFakeEventRepo()
	s := newTestSession(repo)
	s.events = []event.Event{event.New(7, at(10, 14, 0), "Dentist", "", "", event.Once)}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(s.Events()) != 0 || len(repo.saved[7]) != 0 {
		t.Fatal("Clear must empty both memory and persistence")
	}
}

func TestRegistryRegisterAndWakeTime(t *testing.T) {
	ctx := context.Background()
	events := newFakeEventRepo()
	users := &fakeUserRepo{}
	reg := NewRegistry(users, events)

	sess, created, err := reg.Register(ctx, 7, "Ada")
	if err != nil || !created {
		t.Fatalf("Register = (%v, %v, %v)", sess, created, err)
	}
	if sess.WakeTime != DefaultWakeTime {
		t.Errorf("wake time = %q, want %q", sess.WakeTime, DefaultWakeTime)
	}

	_, created, err = reg.Register(ctx, 7, "Ada")
	if err != nil || created {
		t.Fatalf("second Register = (created=%v, err=%v), want existing user", created, err)
	}

	if err := reg.SetWakeTime(ctx, 7, "06:45"); err != nil {
		t.Fatalf("SetWakeTime: %v", err)
	}
	if reg.Get(7).WakeTime != "06:45" {
		t.Error("wake time not updated")
	}

	users.failNext = errors.New("down")
	if err := reg.SetWakeTime(ctx, 7, "08:00"); err == nil {
		t.Fatal("expected error from failing repo")
	}
	if reg.Get(7).WakeTime != "06:45" {
		t.Error("wake time must roll back on a failed save")
	}

	if err := reg.SetWakeTime(ctx, 99, "08:00"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("unknown user error = %v, want ErrNotFound", err)
	}
}

type fakeUserRepo struct {
	records  []store.UserRecord
	failNext error
}

func (f *fakeUserRepo) List(context.Context) ([]store.UserRecord, error) {
	return f.records, nil
}

func (f *fakeUserRepo) Upsert(_ context.Context, rec store.UserRecord) error {
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.records = append(f.records, rec)
	return nil
}

func TestParseWakeTime(t *testing.T) {
	tests := []struct {
		in      string
		hour    int
		minute  int
		wantErr bool
	}{
		{"09:00", 9, 0, false},
		{"23:59", 23, 59, false},
		{"0:05", 0, 5, false},
		{"24:00", 0, 0, true},
		{"09:60", 0, 0, true},
		{"nine", 0, 0, true},
		{"", 0, 0, true},
	}
	for _, tt := range tests {
		hour, minute, err := ParseWakeTime(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseWakeTime(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && (hour != tt.hour || minute != tt.minute) {
			t.Errorf("ParseWakeTime(%q) = %d:%d, want %d:%d", tt.in, hour, minute, tt.hour, tt.minute)
		}
	}
}
