package session

import (
	"context"
	"net/url"
	"time"

	"github.com/GriffinCanCode/bastion/internal/domain/relay"
	"github.com/GriffinCanCode/bastion/internal/engine"
	"github.com/GriffinCanCode/bastion/internal/infrastructure/logging"
	"github.com/GriffinCanCode/bastion/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/bastion/internal/providers/policy"
	"github.com/GriffinCanCode/bastion/internal/shared/paths"
)

// Outbound is the client connection. Both methods may be called
// concurrently and must serialize writes.
type Outbound interface {
	Send(msg Message) error
	relay.Sink
}

// Ticket is the admission slot held by a session.
type Ticket interface {
	Release()
}

// URLGuard vetoes URLs that must not be visited.
type URLGuard interface {
	Check(ctx context.Context, u *url.URL) error
}

// ThreatScanner looks up URL and file reputations.
type ThreatScanner interface {
	ScanURL(ctx context.Context, apiKey, target string) (policy.Verdict, error)
	ScanFile(ctx context.Context, apiKey, path string) (string, error)
}

// Allowlist exempts hosts from threat scans.
type Allowlist interface {
	Allows(host string) bool
}

// Fetcher downloads a URL into a directory.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL, dir string, mark func(name string)) (string, error)
}

// SecretStore persists the threat-scan key.
type SecretStore interface {
	SetVTKey(key string) error
}

// Deps are the collaborators shared by every session. Guard, Scanner,
// Allowlist, Fetcher and Vault are optional.
type Deps struct {
	Engine    engine.Engine
	Layout    paths.Layout
	Guard     URLGuard
	Scanner   ThreatScanner
	Allowlist Allowlist
	Fetcher   Fetcher
	Vault     SecretStore
	Metrics   *monitoring.Metrics
	Logger    *logging.Logger
}

// Options holds per-session limits and defaults.
type Options struct {
	MaxTabs           int
	Language          string
	UserAgent         string
	ViewportWidth     int
	ViewportHeight    int
	Screencast        engine.ScreencastOptions
	NavigationTimeout time.Duration
	CommandTimeout    time.Duration
	SettleDelay       time.Duration
	CleanupDelay      time.Duration
	VTKey             string
}

// DefaultOptions mirrors the server defaults.
func DefaultOptions() Options {
	return Options{
		MaxTabs:           10,
		Language:          "es-ES",
		ViewportWidth:     1280,
		ViewportHeight:    720,
		Screencast:        engine.ScreencastOptions{Quality: 70, MaxWidth: 1920, MaxHeight: 1080},
		NavigationTimeout: 30 * time.Second,
		CommandTimeout:    10 * time.Second,
		SettleDelay:       time.Second,
		CleanupDelay:      2 * time.Second,
	}
}
