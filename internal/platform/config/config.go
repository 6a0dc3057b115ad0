package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8321"`
	APIBaseURL  string `env:"API_BASE_URL"`
	RealtimeURL string `env:"REALTIME_URL"`
	AccessToken string `env:"ACCESS_TOKEN"`
	RedisURL    string `env:"REDIS_URL"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	ReconnectDelay       time.Duration `env:"RECONNECT_DELAY" default:"5s"`
	ReconnectMaxAttempts int           `env:"RECONNECT_MAX_ATTEMPTS" default:"6"`

	CacheTTL time.Duration `env:"CACHE_TTL" default:"5m"`
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	required := map[string]string{
		"API_BASE_URL": cfg.APIBaseURL,
		"ACCESS_TOKEN": cfg.AccessToken,
	}
	for name, value := range required {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	if _, err := url.Parse(cfg.APIBaseURL); err != nil {
		return fmt.Errorf("API_BASE_URL must be a valid URL: %w", err)
	}

	if cfg.ReconnectDelay <= 0 {
		return errors.New("RECONNECT_DELAY must be positive")
	}
	if cfg.ReconnectMaxAttempts < 1 {
		return errors.New("RECONNECT_MAX_ATTEMPTS must be at least 1")
	}
	if cfg.CacheTTL <= 0 {
		return errors.New("CACHE_TTL must be positive")
	}

	return nil
}

// WebsocketURL returns the realtime endpoint. When REALTIME_URL is unset it
// is derived from API_BASE_URL by switching the scheme and appending /ws.
func (c *Config) WebsocketURL() string {
	if c.RealtimeURL != "" {
		return c.RealtimeURL
	}

	ws := c.APIBaseURL
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return strings.TrimSuffix(ws, "/") + "/ws"
}
