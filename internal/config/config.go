package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// ServerConfig configures the Detection Service binary.
type ServerConfig struct {
	HTTPAddr string `env:"JUTE_HTTP_ADDR" envDefault:":8000"`
	GRPCAddr string `env:"JUTE_GRPC_ADDR" envDefault:":8001"`

	// DB
	Env    string `env:"JUTE_ENV" envDefault:"dev"` // "dev" | "prod"
	DBPath string `env:"JUTE_DB_PATH" envDefault:"./data/jutevision.db"`

	// SettingsBackend selects where PIN settings live: "sqlite" (the
	// database above), "file" (SettingsPath, hot-reloaded) or "memory".
	SettingsBackend string `env:"JUTE_SETTINGS_BACKEND" envDefault:"sqlite"`
	SettingsPath    string `env:"JUTE_SETTINGS_PATH" envDefault:"./jutevision_settings.json"`

	// Capture retention
	CaptureRetentionDays int `env:"JUTE_CAPTURE_RETENTION_DAYS" envDefault:"30"` // 0 = keep forever
	PruneIntervalHours   int `env:"JUTE_PRUNE_INTERVAL_HOURS" envDefault:"6"`

	// ReplayCounts drives the stand-in frame source.
	ReplayCounts []int `env:"JUTE_REPLAY_COUNTS" envSeparator:"," envDefault:"0,2,3,5,6,4"`

	// Dev-only PINs installed into a never-saved sqlite settings row.
	// Ignored when JUTE_ENV=prod.
	DevAppPIN  string `env:"JUTE_DEV_APP_PIN"`
	DevFilePIN string `env:"JUTE_DEV_FILE_PIN"`

	VerifyBurst    int           `env:"JUTE_VERIFY_BURST" envDefault:"10"`
	VerifyInterval time.Duration `env:"JUTE_VERIFY_INTERVAL" envDefault:"500ms"`

	LogLevel string `env:"JUTE_LOG_LEVEL" envDefault:"info"`
}

// ClientConfig configures the operator CLI.
type ClientConfig struct {
	ServiceURL     string        `env:"JUTE_SERVICE_URL" envDefault:"http://localhost:8000"`
	GRPCAddr       string        `env:"JUTE_GRPC_ADDR" envDefault:"localhost:8001"`
	PollInterval   time.Duration `env:"JUTE_POLL_INTERVAL" envDefault:"1500ms"`
	RequestTimeout time.Duration `env:"JUTE_REQUEST_TIMEOUT" envDefault:"5s"`
	// WireFormat is "json" or "protobuf" for metrics polling.
	WireFormat  string `env:"JUTE_WIRE_FORMAT" envDefault:"json"`
	SkipConfirm bool   `env:"JUTE_SKIP_CONFIRM"`
	AppPIN      string `env:"JUTE_APP_PIN"`
	Inspector   string `env:"JUTE_INSPECTOR"`

	LogLevel string `env:"JUTE_LOG_LEVEL" envDefault:"warn"`
}

func ServerFromEnv() (ServerConfig, error) {
	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func ClientFromEnv() (ClientConfig, error) {
	var cfg ClientConfig
	if err := env.Parse(&cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	return cfg, nil
}

func (c *ServerConfig) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Env != "dev" && c.Env != "prod" {
		// fail-soft: treat unknown as dev
		c.Env = "dev"
	}
	if c.Env == "prod" {
		c.DevAppPIN, c.DevFilePIN = "", ""
	}

	c.SettingsBackend = strings.ToLower(strings.TrimSpace(c.SettingsBackend))
	switch c.SettingsBackend {
	case "sqlite", "file", "memory":
	default:
		c.SettingsBackend = "sqlite"
	}

	if c.CaptureRetentionDays < 0 {
		c.CaptureRetentionDays = 30
	}
	if c.PruneIntervalHours <= 0 {
		c.PruneIntervalHours = 6
	}

	counts := c.ReplayCounts[:0]
	for _, n := range c.ReplayCounts {
		if n >= 0 {
			counts = append(counts, n)
		}
	}
	c.ReplayCounts = counts

	if c.VerifyBurst <= 0 {
		c.VerifyBurst = 10
	}
	if c.VerifyInterval <= 0 {
		c.VerifyInterval = 500 * time.Millisecond
	}
}

func (c *ClientConfig) normalize() {
	c.ServiceURL = strings.TrimRight(strings.TrimSpace(c.ServiceURL), "/")
	if c.PollInterval <= 0 {
		c.PollInterval = 1500 * time.Millisecond
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Second
	}
	c.WireFormat = strings.ToLower(strings.TrimSpace(c.WireFormat))
	if c.WireFormat != "protobuf" {
		c.WireFormat = "json"
	}
}

// NewLogger returns a text slog logger at level. Unknown levels fall back
// to info.
func NewLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
