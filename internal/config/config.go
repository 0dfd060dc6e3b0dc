// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig
	Session    SessionConfig
	Automation AutomationConfig
	Captcha    CaptchaConfig
	Storage    StorageConfig
	RateLimit  RateLimitConfig
	Logging    LogConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr string `envconfig:"LISTEN_ADDR" default:":8080"`
}

// SessionConfig holds session lifecycle configuration. The idle TTL is a
// required knob: without a reaper, browser handles accumulate without bound.
type SessionConfig struct {
	TTL            time.Duration `envconfig:"SESSION_TTL" default:"30m"`
	ReaperInterval time.Duration `envconfig:"REAPER_INTERVAL" default:"1m"`
}

// AutomationConfig holds browser automation configuration.
type AutomationConfig struct {
	// Launch selects how Chrome is provisioned: "local" launches via the
	// rod launcher, "docker" runs one browserless/chrome container per
	// session.
	Launch      string        `envconfig:"AUTOMATION_LAUNCH" default:"local"`
	Headless    bool          `envconfig:"AUTOMATION_HEADLESS" default:"true"`
	WaitTimeout time.Duration `envconfig:"AUTOMATION_WAIT_TIMEOUT" default:"15s"`
	NavTimeout  time.Duration `envconfig:"AUTOMATION_NAV_TIMEOUT" default:"30s"`
	ChromeImage string        `envconfig:"AUTOMATION_CHROME_IMAGE" default:"browserless/chrome:latest"`
}

// CaptchaConfig holds captcha pipeline configuration.
type CaptchaConfig struct {
	ExpectedLength int    `envconfig:"CAPTCHA_EXPECTED_LENGTH" default:"5"`
	Workers        int    `envconfig:"CAPTCHA_WORKERS" default:"0"` // 0 = NumCPU
	NeuralEndpoint string `envconfig:"CAPTCHA_NEURAL_ENDPOINT" default:"http://localhost:8501/recognize"`
	TessdataPrefix string `envconfig:"CAPTCHA_TESSDATA_PREFIX" default:""`
}

// StorageConfig holds history and artifact storage locations.
type StorageConfig struct {
	HistoryFile string `envconfig:"HISTORY_FILE" default:"search_history.json"`
	ArtifactDir string `envconfig:"ARTIFACT_DIR" default:"saved_pdfs"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerHour int  `envconfig:"RATE_LIMIT_PER_HOUR" default:"600"`
	Burst           int  `envconfig:"RATE_LIMIT_BURST" default:"20"`
	Enabled         bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Captcha.Workers <= 0 {
		cfg.Captcha.Workers = runtime.NumCPU()
	}
	return &cfg, nil
}
