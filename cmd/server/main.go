package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/agenda/internal/bot"
	"github.com/example/agenda/internal/config"
	httpserver "github.com/example/agenda/internal/http"
	"github.com/example/agenda/internal/schedule"
	"github.com/example/agenda/internal/store"
	"github.com/example/agenda/internal/template"
	"github.com/example/agenda/internal/todo"
	"github.com/example/agenda/internal/user"
)

func main() {
	log.Println("Starting Agenda server...")
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatalf("failed to create db pool: %v", err)
	}
	defer pool.Close()

	if err := store.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("failed to apply migrations: %v", err)
	}

	stor := store.New(pool)

	registry := user.NewRegistry(stor.Users, stor.Events)
	if err := registry.Load(ctx); err != nil {
		log.Fatalf("failed to load users: %v", err)
	}
	log.Printf("loaded %d users", len(registry.Sessions()))

	templates := template.NewStore(stor.Templates)
	todos := todo.NewService(stor.Todos)
	sender := bot.NewTelegram(cfg.Bot.Token)

	// The bot and the scheduler reference each other: the bot runs its
	// mutations under the scheduler's tick lock, the scheduler delivers
	// through the bot.
	sched := schedule.New(registry, templates.ExpandForDate, nil, schedule.Config{
		Interval:    cfg.Scheduler.Interval,
		MatchWindow: cfg.Scheduler.MatchWindow,
	})
	b := bot.New(registry, sched, templates, todos, sender, cfg.Bot.RegisterPassword, cfg.BaseURL)
	sched.SetNotifier(b)

	sched.OnRollover(func(ctx context.Context, day time.Time) error {
		ids := make([]int64, 0)
		for _, s := range registry.Sessions() {
			ids = append(ids, s.ID)
		}
		return todos.Rollover(ctx, ids, day)
	})

	go func() {
		if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("scheduler stopped: %v", err)
		}
	}()

	r := httpserver.NewRouter(cfg, stor, registry, sched, b)

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("server listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
