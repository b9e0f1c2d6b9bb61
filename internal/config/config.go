package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

type Config struct {
	ListenAddr string
	BaseURL    string

	DB struct {
		DSN string
	}

	Bot struct {
		Token            string
		WebhookSecret    string
		RegisterPassword string
	}

	Scheduler struct {
		Interval    time.Duration
		MatchWindow time.Duration
	}

	PrometheusEnabled bool
	TrustedProxies    []string
}

func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ListenAddr = getenvDefault("APP_LISTEN_ADDR", ":8080")
	cfg.BaseURL = getenvDefault("APP_BASE_URL", "http://localhost:8080")
	cfg.DB.DSN = os.Getenv("APP_DB_DSN")

	if cfg.DB.DSN == "" {
		host := os.Getenv("APP_DB_HOST")
		name := os.Getenv("APP_DB_NAME")
		user := os.Getenv("APP_DB_USER")
		password := os.Getenv("APP_DB_PASSWORD")
		port := getenvDefault("APP_DB_PORT", "5432")
		sslmode := getenvDefault("APP_DB_SSLMODE", "disable")

		var missing []string
		if host == "" {
			missing = append(missing, "APP_DB_HOST")
		}
		if name == "" {
			missing = append(missing, "APP_DB_NAME")
		}
		if user == "" {
			missing = append(missing, "APP_DB_USER")
		}
		if password == "" {
			missing = append(missing, "APP_DB_PASSWORD")
		}

		if len(missing) == 0 {
			cfg.DB.DSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, name, sslmode)
		}
	}

	cfg.Bot.Token = os.Getenv("APP_BOT_TOKEN")
	cfg.Bot.WebhookSecret = os.Getenv("APP_WEBHOOK_SECRET")
	cfg.Bot.RegisterPassword = os.Getenv("APP_REGISTER_PASSWORD_HASH")
	cfg.Scheduler.Interval = getenvDuration("APP_TICK_INTERVAL", 15*time.Second)
	cfg.Scheduler.MatchWindow = getenvDuration("APP_TICK_MATCH_WINDOW", time.Minute)
	cfg.PrometheusEnabled = getenvBool("APP_PROMETHEUS_ENDPOINT_ENABLED", false)
	cfg.TrustedProxies = getenvList("APP_TRUSTED_PROXIES")

	if cfg.DB.DSN == "" {
		return nil, errors.New("APP_DB_DSN is required (or set APP_DB_HOST, APP_DB_NAME, APP_DB_USER, and APP_DB_PASSWORD)")
	}
	if cfg.Bot.Token == "" {
		return nil, errors.New("APP_BOT_TOKEN is required")
	}
	if cfg.Bot.RegisterPassword == "" {
		return nil, errors.New("APP_REGISTER_PASSWORD_HASH is required (a bcrypt hash of the registration password)")
	}
	if !strings.HasPrefix(cfg.Bot.RegisterPassword, "$2") {
		return nil, errors.New("APP_REGISTER_PASSWORD_HASH must be a bcrypt hash, not a plaintext password")
	}
	if cfg.Scheduler.Interval <= 0 || cfg.Scheduler.Interval > time.Minute {
		return nil, fmt.Errorf("APP_TICK_INTERVAL must be between 1s and 1m (got %s)", cfg.Scheduler.Interval)
	}
	if cfg.Scheduler.MatchWindow < time.Minute {
		return nil, fmt.Errorf("APP_TICK_MATCH_WINDOW must be at least 1m (got %s)", cfg.Scheduler.MatchWindow)
	}

	if cfg.Bot.WebhookSecret == "" {
		fmt.Println("WARNING: No APP_WEBHOOK_SECRET configured. The webhook endpoint will accept unauthenticated updates - Not recommended for public environments.")
	}
	if len(cfg.TrustedProxies) == 0 {
		fmt.Println("WARNING: No APP_TRUSTED_PROXIES configured. Agenda will trust all proxies - Not recommended for public environments.")
	}

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getenvList(key string) []string {
	if v := os.Getenv(key); v != "" {
		var result []string
		for _, item := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return nil
}
