package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/agenda/internal/event"
)

// userRepo implements UserRepository.
type userRepo struct {
	pool *pgxpool.Pool
}

func (r *userRepo) List(ctx context.Context) ([]UserRecord, error) {
	defer observeDB(ctx, "users.list")()

	rows, err := r.pool.Query(ctx, `SELECT id, name, waketime FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var out []UserRecord
	for rows.Next() {
		var rec UserRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.WakeTime); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return out, nil
}

func (r *userRepo) Upsert(ctx context.Context, rec UserRecord) error {
	defer observeDB(ctx, "users.upsert")()

	const q = `INSERT INTO users (id, name, waketime) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, waketime = EXCLUDED.waketime`
	if _, err := r.pool.Exec(ctx, q, rec.ID, rec.Name, rec.WakeTime); err != nil {
		return fmt.Errorf("upsert user %d: %w", rec.ID, err)
	}
	return nil
}

// eventRepo implements EventRepository.
type eventRepo struct {
	pool *pgxpool.Pool
}

const eventColumns = `occurs_at, title, info, location, reminder_minutes, recurrence, deleted`

func (r *eventRepo) ListEvents(ctx context.Context, userID int64) ([]event.Event, error) {
	defer observeDB(ctx, "events.list")()

	rows, err := r.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM events WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list events for %d: %w", userID, err)
	}
	defer rows.Close()

	events, err := scanEvents(rows, userID)
	if err != nil {
		return nil, fmt.Errorf("list events for %d: %w", userID, err)
	}
	return events, nil
}

// ReplaceEvents overwrites a user's whole collection in one transaction. A
// crash before commit leaves the previous state intact.
func (r *eventRepo) ReplaceEvents(ctx context.Context, userID int64, events []event.Event) error {
	defer observeDB(ctx, "events.replace")()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("replace events for %d: %w", userID, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM events WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("replace events for %d: %w", userID, err)
	}

	const q = `INSERT INTO events (user_id, ` + eventColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	for _, e := range events {
		_, err := tx.Exec(ctx, q, userID, e.When, e.Title, e.Info, e.Location,
			int(e.ReminderOffset/time.Minute), e.Recurrence.String(), e.Deleted)
		if err != nil {
			return fmt.Errorf("replace events for %d: %w", userID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("replace events for %d: %w", userID, err)
	}
	return nil
}

// templateRepo implements TemplateRepository.
type templateRepo struct {
	pool *pgxpool.Pool
}

func (r *templateRepo) ListAll(ctx context.Context, userID int64) ([]event.Event, error) {
	defer observeDB(ctx, "templates.list_all")()

	rows, err := r.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM templates WHERE user_id = $1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list templates for %d: %w", userID, err)
	}
	defer rows.Close()

	events, err := scanEvents(rows, userID)
	if err != nil {
		return nil, fmt.Errorf("list templates for %d: %w", userID, err)
	}
	return events, nil
}

func (r *templateRepo) ListForWeekday(ctx context.Context, userID int64, weekday time.Weekday) ([]event.Event, error) {
	defer observeDB(ctx, "templates.list_weekday")()

	rows, err := r.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM templates WHERE user_id = $1 AND weekday = $2 ORDER BY id`,
		userID, int(weekday))
	if err != nil {
		return nil, fmt.Errorf("list %s templates for %d: %w", weekday, userID, err)
	}
	defer rows.Close()

	events, err := scanEvents(rows, userID)
	if err != nil {
		return nil, fmt.Errorf("list %s templates for %d: %w", weekday, userID, err)
	}
	return events, nil
}

func (r *templateRepo) ReplaceForWeekday(ctx context.Context, userID int64, weekday time.Weekday, events []event.Event) error {
	defer observeDB(ctx, "templates.replace_weekday")()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("replace %s templates for %d: %w", weekday, userID, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`DELETE FROM templates WHERE user_id = $1 AND weekday = $2`, userID, int(weekday)); err != nil {
		return fmt.Errorf("replace %s templates for %d: %w", weekday, userID, err)
	}

	const q = `INSERT INTO templates (user_id, weekday, ` + eventColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	for _, e := range events {
		_, err := tx.Exec(ctx, q, userID, int(weekday), e.When, e.Title, e.Info, e.Location,
			int(e.ReminderOffset/time.Minute), e.Recurrence.String(), e.Deleted)
		if err != nil {
			return fmt.Errorf("replace %s templates for %d: %w", weekday, userID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("replace %s templates for %d: %w", weekday, userID, err)
	}
	return nil
}

// todoRepo implements TodoRepository.
type todoRepo struct {
	pool *pgxpool.Pool
}

func (r *todoRepo) GetList(ctx context.Context, userID int64, name string) ([]string, error) {
	defer observeDB(ctx, "todos.get")()

	rows, err := r.pool.Query(ctx,
		`SELECT item FROM todos WHERE user_id = $1 AND list = $2 ORDER BY position`,
		userID, name)
	if err != nil {
		return nil, fmt.Errorf("get todo list %q for %d: %w", name, userID, err)
	}
	defer rows.Close()

	var items []string
	for rows.Next() {
		var item string
		if err := rows.Scan(&item); err != nil {
			return nil, fmt.Errorf("get todo list %q for %d: %w", name, userID, err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get todo list %q for %d: %w", name, userID, err)
	}
	return items, nil
}

func (r *todoRepo) SaveList(ctx context.Context, userID int64, name string, items []string) error {
	defer observeDB(ctx, "todos.save")()

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("save todo list %q for %d: %w", name, userID, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx,
		`DELETE FROM todos WHERE user_id = $1 AND list = $2`, userID, name); err != nil {
		return fmt.Errorf("save todo list %q for %d: %w", name, userID, err)
	}

	for i, item := range items {
		_, err := tx.Exec(ctx,
			`INSERT INTO todos (user_id, list, position, item) VALUES ($1, $2, $3, $4)`,
			userID, name, i, item)
		if err != nil {
			return fmt.Errorf("save todo list %q for %d: %w", name, userID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("save todo list %q for %d: %w", name, userID, err)
	}
	return nil
}

func scanEvents(rows pgx.Rows, userID int64) ([]event.Event, error) {
	var out []event.Event
	for rows.Next() {
		var (
			e               event.Event
			reminderMinutes int
			recurrence      string
		)
		err := rows.Scan(&e.When, &e.Title, &e.Info, &e.Location,
			&reminderMinutes, &recurrence, &e.Deleted)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Owner = userID
		e.ReminderOffset = time.Duration(reminderMinutes) * time.Minute
		e.Recurrence = event.ParseRecurrence(recurrence)
		out = append(out, e)
	}
	return out, rows.Err()
}
