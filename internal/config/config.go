// Package config reads and validates orchestrator configuration from the
// environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// ValidationError reports a bad input value. Requests carrying one are
// rejected before any task is created.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

const (
	DefaultQuality    = 192
	DefaultMode       = "smart"
	DefaultMaxWorkers = 3
	MinWorkers        = 1
	MaxWorkers        = 10
)

var validQualities = map[int]bool{64: true, 128: true, 192: true, 256: true, 320: true}

var validModes = map[string]bool{"basic": true, "advanced": true, "smart": true}

// ValidateQuality checks the audio bitrate against the supported presets.
func ValidateQuality(quality int) error {
	if !validQualities[quality] {
		return &ValidationError{Field: "quality", Message: "must be one of 64, 128, 192, 256, 320"}
	}

	return nil
}

// ValidateMode checks the downloader mode.
func ValidateMode(mode string) error {
	if !validModes[mode] {
		return &ValidationError{Field: "mode", Message: "must be one of basic, advanced, smart"}
	}

	return nil
}

// ValidateWorkers checks the worker count range.
func ValidateWorkers(workers int) error {
	if workers < MinWorkers || workers > MaxWorkers {
		return &ValidationError{Field: "max_workers", Message: fmt.Sprintf("must be between %d and %d", MinWorkers, MaxWorkers)}
	}

	return nil
}

type Config struct {
	Port          string
	RedisAddr     string
	PostgresDSN   string
	OutputDir     string
	Quality       int
	Mode          string
	MaxWorkers    int
	RateLimitKBps int
	MaxRetries    int
	ItemTimeout   time.Duration
	TaskRetention time.Duration
	YtDlpPath     string
	FFmpegPath    string

	SendGridAPIKey string
	NotifyFrom     string
	NotifyTo       string
}

// Load builds a Config from environment variables, applying defaults and
// validating ranges.
func Load() (*Config, error) {
	cfg := &Config{
		Port:          envOr("PORT", "8080"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		PostgresDSN:   os.Getenv("POSTGRES_DSN"),
		OutputDir:     envOr("OUTPUT_DIR", "downloads"),
		Quality:       envIntOr("QUALITY", DefaultQuality),
		Mode:          envOr("MODE", DefaultMode),
		MaxWorkers:    envIntOr("MAX_WORKERS", DefaultMaxWorkers),
		RateLimitKBps: envIntOr("RATE_LIMIT_KBPS", 0),
		MaxRetries:    envIntOr("MAX_RETRIES", 3),
		ItemTimeout:   envDurationOr("ITEM_TIMEOUT", 10*time.Minute),
		TaskRetention: envDurationOr("TASK_RETENTION", 24*time.Hour),
		YtDlpPath:     os.Getenv("YTDLP_PATH"),
		FFmpegPath:    os.Getenv("FFMPEG_PATH"),

		SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
		NotifyFrom:     os.Getenv("NOTIFY_EMAIL_FROM"),
		NotifyTo:       os.Getenv("NOTIFY_EMAIL_TO"),
	}

	if err := ValidateQuality(cfg.Quality); err != nil {
		return nil, err
	}
	if err := ValidateMode(cfg.Mode); err != nil {
		return nil, err
	}
	if err := ValidateWorkers(cfg.MaxWorkers); err != nil {
		return nil, err
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}

	return n
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}

	return d
}
