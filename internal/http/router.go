package httpserver

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/time/rate"

	"github.com/example/agenda/internal/bot"
	"github.com/example/agenda/internal/config"
	"github.com/example/agenda/internal/event"
	httperrors "github.com/example/agenda/internal/http/errors"
	"github.com/example/agenda/internal/http/ratelimit"
	"github.com/example/agenda/internal/ical"
	"github.com/example/agenda/internal/metrics"
	"github.com/example/agenda/internal/schedule"
	"github.com/example/agenda/internal/store"
	"github.com/example/agenda/internal/user"
)

// NewRouter wires all HTTP routes: health probes, the Telegram webhook, and
// the calendar export endpoint.
func NewRouter(cfg *config.Config, store *store.Store, registry *user.Registry, sched *schedule.Scheduler, b *bot.Bot) http.Handler {
	r := chi.NewRouter()

	// Webhook endpoint: 10 requests per second, burst of 20 (Telegram batches
	// retries after downtime)
	webhookRateLimiter := ratelimit.NewIPRateLimiter(rate.Limit(10), 20, 5*time.Minute, cfg.TrustedProxies)
	// Export endpoint: 2 requests per second, burst of 5
	exportRateLimiter := ratelimit.NewIPRateLimiter(rate.Limit(2), 5, 5*time.Minute, cfg.TrustedProxies)

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := store.HealthCheck(ctx); err != nil {
			http.Error(w, "unready", http.StatusServiceUnavailable)
			return
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if cfg.PrometheusEnabled {
		r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			metrics.Handler().ServeHTTP(w, r)
		})
	}

	r.With(webhookRateLimiter.Middleware()).
		Post("/telegram/webhook", b.WebhookHandler(cfg.Bot.WebhookSecret))

	r.With(exportRateLimiter.Middleware()).
		Get("/export/{chatID}.ics", exportHandler(registry, sched))

	return r
}

// exportHandler serves a user's events as an iCalendar document. The event
// snapshot is taken under the scheduler's tick lock.
func exportHandler(registry *user.Registry, sched *schedule.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		chatID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
		if err != nil {
			httperrors.BadRequestError(w, r, err, "invalid chat id")
			return
		}

		sess := registry.Get(chatID)
		if sess == nil {
			http.NotFound(w, r)
			return
		}

		var events []event.Event
		sched.Do(func(*schedule.Cache) {
			events = sess.Events()
		})

		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="agenda.ics"`)
		if _, err := w.Write([]byte(ical.BuildCalendar(events, time.Now()))); err != nil {
			httperrors.LogError(r, "write calendar export", err)
		}
	}
}
