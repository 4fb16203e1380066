package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

const (
	RetryFixed       = "fixed"
	RetryExponential = "exponential"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" default:"development"`
	Port        string `env:"PORT" default:"8080"`
	BaseURL     string `env:"BASE_URL" default:"http://localhost:8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`
	APIKey      string `env:"API_KEY"`
	LogLevel    string `env:"LOG_LEVEL" default:"info"`
	LogFormat   string `env:"LOG_FORMAT" default:"text"`

	WebcastRelayURL         string `env:"WEBCAST_RELAY_URL"`
	CredentialEncryptionKey string `env:"CREDENTIAL_ENCRYPTION_KEY"`

	DefaultCapacity int `env:"DEFAULT_CAPACITY" default:"100"`
	MinCapacity     int `env:"MIN_CAPACITY" default:"10"`

	RetryStrategy         string        `env:"RETRY_STRATEGY" default:"fixed"`
	RetryOpenFailureDelay time.Duration `env:"RETRY_OPEN_FAILURE_DELAY" default:"5s"`
	RetryDisconnectDelay  time.Duration `env:"RETRY_DISCONNECT_DELAY" default:"3s"`
	RetryMaxDelay         time.Duration `env:"RETRY_MAX_DELAY" default:"1m"`
	RetryMaxAttempts      int           `env:"RETRY_MAX_ATTEMPTS" default:"0"`

	MaxClientsPerStreamer   int     `env:"MAX_CLIENTS_PER_STREAMER" default:"50"`
	MaxWebSocketConnections int     `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"20"`
	OverlayRateLimit        float64 `env:"OVERLAY_RATE_LIMIT" default:"10"`
	OverlayRateBurst        int     `env:"OVERLAY_RATE_BURST" default:"20"`

	ProfileCacheTTL time.Duration `env:"PROFILE_CACHE_TTL" default:"30s"`
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

// IsProduction reports whether APP_ENV is "production".
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func validate(cfg *Config) error {
	required := []struct{ name, value string }{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"API_KEY", cfg.APIKey},
		{"WEBCAST_RELAY_URL", cfg.WebcastRelayURL},
	}
	for _, r := range required {
		if r.value == "" {
			return fmt.Errorf("%s is required", r.name)
		}
	}

	if len(cfg.APIKey) < 16 {
		return errors.New("API_KEY must be at least 16 characters")
	}

	relay, err := url.Parse(cfg.WebcastRelayURL)
	if err != nil || (relay.Scheme != "ws" && relay.Scheme != "wss") {
		return errors.New("WEBCAST_RELAY_URL must be a ws:// or wss:// URL")
	}

	if cfg.CredentialEncryptionKey != "" {
		keyBytes, err := hex.DecodeString(cfg.CredentialEncryptionKey)
		if err != nil {
			return fmt.Errorf("CREDENTIAL_ENCRYPTION_KEY must be valid hex: %w", err)
		}
		if len(keyBytes) != 32 {
			return fmt.Errorf("CREDENTIAL_ENCRYPTION_KEY must be exactly 64 hex characters (32 bytes), got %d bytes", len(keyBytes))
		}
	}

	if cfg.MinCapacity < 1 {
		return errors.New("MIN_CAPACITY must be positive")
	}
	if cfg.DefaultCapacity < cfg.MinCapacity {
		return fmt.Errorf("DEFAULT_CAPACITY must be at least MIN_CAPACITY (%d)", cfg.MinCapacity)
	}

	switch cfg.RetryStrategy {
	case RetryFixed, RetryExponential:
	default:
		return fmt.Errorf("RETRY_STRATEGY must be %q or %q", RetryFixed, RetryExponential)
	}
	if cfg.RetryOpenFailureDelay <= 0 || cfg.RetryDisconnectDelay <= 0 {
		return errors.New("retry delays must be positive")
	}
	if cfg.RetryMaxDelay < cfg.RetryOpenFailureDelay {
		return errors.New("RETRY_MAX_DELAY must not be below RETRY_OPEN_FAILURE_DELAY")
	}
	if cfg.RetryMaxAttempts < 0 {
		return errors.New("RETRY_MAX_ATTEMPTS must not be negative")
	}

	if cfg.MaxClientsPerStreamer < 1 || cfg.MaxWebSocketConnections < 1 || cfg.MaxConnectionsPerIP < 1 {
		return errors.New("connection limits must be positive")
	}
	if cfg.OverlayRateLimit <= 0 || cfg.OverlayRateBurst < 1 {
		return errors.New("OVERLAY_RATE_LIMIT and OVERLAY_RATE_BURST must be positive")
	}

	return nil
}
