package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Auth      AuthConfig
	Limits    LimitsConfig
	Browser   BrowserConfig
	Storage   StorageConfig
	Transfer  TransferConfig
	Session   SessionConfig
	Policy    PolicyConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8112"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	TLSCertFile     string        `envconfig:"TLS_CERT_FILE"`
	TLSKeyFile      string        `envconfig:"TLS_KEY_FILE"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// TLSEnabled reports whether both halves of a certificate pair are configured.
func (s ServerConfig) TLSEnabled() bool {
	return s.TLSCertFile != "" && s.TLSKeyFile != ""
}

// AuthConfig holds the shared credential for the control channel and HTTP surface.
type AuthConfig struct {
	APIKey string `envconfig:"API_KEY" default:"bastion-browser-secret-key"`
}

// LimitsConfig holds the process-wide and per-session caps.
type LimitsConfig struct {
	MaxSessions int `envconfig:"MAX_SESSIONS" default:"5"`
	MaxTabs     int `envconfig:"MAX_TABS" default:"10"`
}

// BrowserConfig holds render engine configuration.
type BrowserConfig struct {
	ControlURL        string        `envconfig:"BROWSER_CONTROL_URL"`
	Bin               string        `envconfig:"BROWSER_BIN"`
	Headless          bool          `envconfig:"BROWSER_HEADLESS" default:"true"`
	NoSandbox         bool          `envconfig:"BROWSER_NO_SANDBOX" default:"true"`
	UserAgent         string        `envconfig:"BROWSER_USER_AGENT"`
	ViewportWidth     int           `envconfig:"VIEWPORT_WIDTH" default:"1280"`
	ViewportHeight    int           `envconfig:"VIEWPORT_HEIGHT" default:"720"`
	ScreencastQuality int           `envconfig:"SCREENCAST_QUALITY" default:"70"`
	ScreencastWidth   int           `envconfig:"SCREENCAST_MAX_WIDTH" default:"1920"`
	ScreencastHeight  int           `envconfig:"SCREENCAST_MAX_HEIGHT" default:"1080"`
	NavigationTimeout time.Duration `envconfig:"NAVIGATION_TIMEOUT" default:"30s"`
}

// StorageConfig holds the per-session transfer roots.
type StorageConfig struct {
	DownloadsDir   string `envconfig:"DOWNLOADS_DIR"`
	UploadsDir     string `envconfig:"UPLOADS_DIR"`
	UploadMaxBytes int64  `envconfig:"UPLOAD_MAX_BYTES" default:"52428800"`
	VaultPath      string `envconfig:"VAULT_PATH" default:"vault.bin"`
}

// TransferConfig holds file transfer timings.
type TransferConfig struct {
	SettleDelay     time.Duration `envconfig:"DOWNLOAD_SETTLE_DELAY" default:"1s"`
	CleanupDelay    time.Duration `envconfig:"UPLOAD_CLEANUP_DELAY" default:"2s"`
	DownloadTimeout time.Duration `envconfig:"DOWNLOAD_TIMEOUT" default:"10s"`
}

// SessionConfig holds defaults applied to new sessions.
type SessionConfig struct {
	DefaultLanguage string `envconfig:"DEFAULT_LANGUAGE" default:"es-ES"`
}

// PolicyConfig holds URL guard and threat scan configuration.
type PolicyConfig struct {
	VirusTotalAPIKey  string   `envconfig:"VIRUSTOTAL_API_KEY"`
	VirusTotalBaseURL string   `envconfig:"VIRUSTOTAL_BASE_URL" default:"https://www.virustotal.com/api/v3"`
	GuardNavigation   bool     `envconfig:"GUARD_NAVIGATION" default:"true"`
	ScanAllowlist     []string `envconfig:"SCAN_ALLOWLIST" default:"google.com,startpage.com,brave.com"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration for the HTTP surface.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"20"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"40"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.fillPaths()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:            "8112",
			Host:            "0.0.0.0",
			ShutdownTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			APIKey: "bastion-browser-secret-key",
		},
		Limits: LimitsConfig{
			MaxSessions: 5,
			MaxTabs:     10,
		},
		Browser: BrowserConfig{
			Headless:          true,
			NoSandbox:         true,
			ViewportWidth:     1280,
			ViewportHeight:    720,
			ScreencastQuality: 70,
			ScreencastWidth:   1920,
			ScreencastHeight:  1080,
			NavigationTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			UploadMaxBytes: 50 << 20,
			VaultPath:      "vault.bin",
		},
		Transfer: TransferConfig{
			SettleDelay:     time.Second,
			CleanupDelay:    2 * time.Second,
			DownloadTimeout: 10 * time.Second,
		},
		Session: SessionConfig{
			DefaultLanguage: "es-ES",
		},
		Policy: PolicyConfig{
			VirusTotalBaseURL: "https://www.virustotal.com/api/v3",
			GuardNavigation:   true,
			ScanAllowlist:     []string{"google.com", "startpage.com", "brave.com"},
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 20,
			Burst:             40,
			Enabled:           true,
		},
	}
	cfg.fillPaths()
	return cfg
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Auth.APIKey == "" {
		return fmt.Errorf("API_KEY must not be empty")
	}
	if c.Limits.MaxSessions < 1 {
		return fmt.Errorf("MAX_SESSIONS must be at least 1, got %d", c.Limits.MaxSessions)
	}
	if c.Limits.MaxTabs < 1 {
		return fmt.Errorf("MAX_TABS must be at least 1, got %d", c.Limits.MaxTabs)
	}
	if c.Browser.ScreencastQuality < 1 || c.Browser.ScreencastQuality > 100 {
		return fmt.Errorf("SCREENCAST_QUALITY must be within 1..100, got %d", c.Browser.ScreencastQuality)
	}
	return nil
}

// fillPaths resolves transfer roots under the user's home when unset.
func (c *Config) fillPaths() {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		home = os.TempDir()
	}
	if c.Storage.DownloadsDir == "" {
		c.Storage.DownloadsDir = filepath.Join(home, "Downloads")
	}
	if c.Storage.UploadsDir == "" {
		c.Storage.UploadsDir = filepath.Join(home, "Uploads")
	}
}
