package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/example/agenda/internal/event"
	"github.com/example/agenda/internal/store"
	"github.com/example/agenda/internal/user"
)

type fakeEventRepo struct {
	saved    map[int64][]event.Event
	failNext error
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
	f.saved[userID] = append([]event.Event(nil), events...)
	return nil
}

func at(day, hour, minute int) time.Time {
	return time.Date(2026, time.March, day, hour, minute, 0, 0, time.Local)
}

func sessionWith(t *testing.T, repo *fakeEventRepo, id int64, events ...event.Event) *user.Session {
	t.Helper()
	repo.saved[id] = events
	s := user.NewSession(store.UserRecord{ID: id, Name: "u", WakeTime: "09:00"}, repo)
	if err := s.LoadEvents(context.Background()); err != nil {
		t.Fatalf("load events: %v", err)
	}
	return s
}

func TestCacheInsertRespectsDate(t *testing.T) {
	c := Cache{day: at(10, 0, 0)}

	c.Insert(event.New(1, at(10, 14, 0), "today", "", "", event.Once))
	c.Insert(event.New(1, at(11, 14, 0), "tomorrow", "", "", event.Once))

	if len(c.events) != 1 || c.events[0].Title != "today" {
		t.Fatalf("cache = %v, want only today's event", c.events)
	}
}

func TestCacheEvict(t *testing.T) {
	c := Cache{day: at(10, 0, 0)}
	a := event.New(1, at(10, 14, 0), "a", "", "", event.Once)
	b := event.New(2, at(10, 15, 0), "b", "", "", event.Once)
	c.events = []event.Event{a, b, a}

	c.Evict(a)

	if len(c.events) != 1 || c.events[0].Title != "b" {
		t.Fatalf("cache after Evict = %v, want only b", c.events)
	}
}

func TestCacheEvictOwner(t *testing.T) {
	c := Cache{day: at(10, 0, 0)}
	c.events = []event.Event{
		event.New(1, at(10, 14, 0), "a", "", "", event.Once),
		event.New(2, at(10, 15, 0), "b", "", "", event.Once),
		event.New(1, at(10, 16, 0), "c", "", "", event.Once),
	}

	c.EvictOwner(1)

	if len(c.events) != 1 || c.events[0].Owner != 2 {
		t.Fatalf("cache after EvictOwner = %v, want only owner 2", c.events)
	}
}

func TestBuildForTodayCollectsAndCleans(t *testing.T) {
	ctx := context.Background()
	today := at(10, 8, 0)
	repo := newFakeEventRepo()

	sess := sessionWith(t, repo, 1,
		event.New(1, at(10, 14, 0), "today", "", "", event.Once),
		event.New(1, at(11, 14, 0), "tomorrow", "", "", event.Once),
		event.New(1, at(8, 14, 0), "stale", "", "", event.Once),
	)

	expand := func(_ context.Context, userID int64, day time.Time) ([]event.Event, error) {
		return []event.Event{event.New(userID, day, "routine", "", "", event.Weekly).OnDate(day)}, nil
	}

	got, err := BuildForToday(ctx, []*user.Session{sess}, expand, today)
	if err != nil {
		t.Fatalf("BuildForToday: %v", err)
	}

	titles := make(map[string]bool)
	for _, e := range got {
		titles[e.Title] = true
	}
	if !titles["today"] || !titles["routine"] {
		t.Fatalf("cache contents = %v, want today's event plus expansion", got)
	}
	if titles["tomorrow"] || titles["stale"] {
		t.Fatalf("cache contents = %v, must exclude other days and expired events", got)
	}
	// Clean ran: the stale one-off is gone from the store too.
	for _, e := range sess.Events() {
		if e.Title == "stale" {
			t.Error("stale event survived the pre-build Clean")
		}
	}
}

func TestBuildForTodayJoinsErrorsButKeepsBuilding(t *testing.T) {
	ctx := context.Background()
	today := at(10, 8, 0)
	repo := newFakeEventRepo()

	broken := sessionWith(t, repo, 1, event.New(1, at(10, 9, 0), "a", "", "", event.Once))
	healthy := sessionWith(t, repo, 2, event.New(2, at(10, 9, 0), "b", "", "", event.Once))

	expand := func(_ context.Context, userID int64, _ time.Time) ([]event.Event, error) {
		if userID == 1 {
			return nil, errors.New("boom")
		}
		return nil, nil
	}

	got, err := BuildForToday(ctx, []*user.Session{broken, healthy}, expand, today)
	if err == nil {
		t.Fatal("expected joined error")
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want both users' events despite the error", len(got))
	}
}
