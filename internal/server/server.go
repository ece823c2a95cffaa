package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	apihttp "github.com/GriffinCanCode/bastion/internal/api/http"
	"github.com/GriffinCanCode/bastion/internal/api/middleware"
	"github.com/GriffinCanCode/bastion/internal/api/ws"
	"github.com/GriffinCanCode/bastion/internal/domain/admission"
	"github.com/GriffinCanCode/bastion/internal/domain/session"
	"github.com/GriffinCanCode/bastion/internal/domain/transfer"
	"github.com/GriffinCanCode/bastion/internal/engine"
	"github.com/GriffinCanCode/bastion/internal/infrastructure/config"
	"github.com/GriffinCanCode/bastion/internal/infrastructure/logging"
	"github.com/GriffinCanCode/bastion/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/bastion/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/bastion/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/bastion/internal/providers/http/client"
	"github.com/GriffinCanCode/bastion/internal/providers/policy"
	"github.com/GriffinCanCode/bastion/internal/providers/vault"
	"github.com/GriffinCanCode/bastion/internal/shared/paths"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Deps are process-level resources created by the caller. Engine is owned
// by the server from then on and closed on Shutdown.
type Deps struct {
	Engine engine.Engine
	// Resolver backs the URL guard; nil uses the system resolver.
	Resolver policy.Resolver
	// Registry receives the metrics; nil uses a private registry.
	Registry *prometheus.Registry
}

// Server wraps the HTTP server and dependencies.
type Server struct {
	cfg      *config.Config
	router   *gin.Engine
	http     *http.Server
	engine   engine.Engine
	admit    *admission.Controller
	sessions *session.Manager
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
	logger   *logging.Logger
}

// New builds the server and every shared collaborator from cfg.
func New(cfg *config.Config, deps Deps, logger *logging.Logger) (*Server, error) {
	if deps.Engine == nil {
		return nil, errors.New("server: render engine is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	metrics := monitoring.NewMetrics(deps.Registry)
	tracer := tracing.New("bastion", logger.Named("trace").Logger)
	admit := admission.New(cfg.Auth.APIKey, cfg.Limits.MaxSessions)
	layout := paths.Layout{
		DownloadsRoot: cfg.Storage.DownloadsDir,
		UploadsRoot:   cfg.Storage.UploadsDir,
	}

	sessionDeps := session.Deps{
		Engine:    deps.Engine,
		Layout:    layout,
		Allowlist: policy.NewAllowlist(cfg.Policy.ScanAllowlist),
		Metrics:   metrics,
		Logger:    logger,
	}
	onBreaker := func(name string, from, to resilience.State) {
		logger.Warn("Circuit breaker state changed",
			zap.String("client", name), zap.String("from", from.String()), zap.String("to", to.String()))
	}

	fetchOpts := client.DefaultOptions("download")
	fetchOpts.Timeout = cfg.Transfer.DownloadTimeout
	fetchOpts.UserAgent = userAgent(cfg)
	fetchOpts.OnStateChange = onBreaker

	var fetchGuard transfer.URLGuard
	if cfg.Policy.GuardNavigation {
		guard := policy.NewGuard(deps.Resolver)
		sessionDeps.Guard = guard
		fetchGuard = guard
		fetchOpts.DialControl = policy.DialControl
		fetchOpts.CheckRedirect = guard.CheckRedirect
	}
	sessionDeps.Fetcher = transfer.NewFetcher(client.NewClient(fetchOpts), fetchGuard,
		cfg.Transfer.DownloadTimeout, logger.Named("fetch").Logger)

	scanOpts := client.DefaultOptions("virustotal")
	scanOpts.Timeout = 15 * time.Second
	scanOpts.RPS = 4
	scanOpts.OnStateChange = onBreaker
	sessionDeps.Scanner = policy.NewScanner(client.NewClient(scanOpts), cfg.Policy.VirusTotalBaseURL,
		logger.Named("virustotal").Logger)

	opts := session.DefaultOptions()
	opts.MaxTabs = cfg.Limits.MaxTabs
	opts.Language = cfg.Session.DefaultLanguage
	opts.UserAgent = cfg.Browser.UserAgent
	opts.ViewportWidth = cfg.Browser.ViewportWidth
	opts.ViewportHeight = cfg.Browser.ViewportHeight
	opts.Screencast = engine.ScreencastOptions{
		Quality:   cfg.Browser.ScreencastQuality,
		MaxWidth:  cfg.Browser.ScreencastWidth,
		MaxHeight: cfg.Browser.ScreencastHeight,
	}
	opts.NavigationTimeout = cfg.Browser.NavigationTimeout
	opts.SettleDelay = cfg.Transfer.SettleDelay
	opts.CleanupDelay = cfg.Transfer.CleanupDelay
	opts.VTKey = cfg.Policy.VirusTotalAPIKey

	secrets, err := vault.Open(cfg.Storage.VaultPath, cfg.Auth.APIKey)
	if err != nil {
		logger.Warn("Secret vault unavailable, threat-scan keys will not persist", zap.Error(err))
	} else {
		sessionDeps.Vault = secrets
	}
	sessions := session.NewManager(sessionDeps, opts)
	if secrets != nil {
		sessions.WithKeySource(secrets)
	}

	s := &Server{
		cfg:      cfg,
		engine:   deps.Engine,
		admit:    admit,
		sessions: sessions,
		metrics:  metrics,
		tracer:   tracer,
		logger:   logger,
	}
	s.router = s.routes(layout)
	s.http = &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(layout paths.Layout) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(s.tracer))
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	handlers := apihttp.NewHandlers(apihttp.Config{
		Layout:         layout,
		UploadMaxBytes: s.cfg.Storage.UploadMaxBytes,
		Capacity:       s.admit,
		Logger:         s.logger,
	})
	wsHandler := ws.NewHandler(s.admit, s.sessions, ws.DefaultConfig(), s.metrics, s.logger)

	router.GET("/health", handlers.Health)
	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	router.GET("/ws", wsHandler.HandleConnection)

	api := router.Group("/api")
	if s.cfg.RateLimit.Enabled {
		api.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: s.cfg.RateLimit.RequestsPerSecond,
			Burst:             s.cfg.RateLimit.Burst,
		}))
	}
	api.Use(middleware.APIKey(s.cfg.Auth.APIKey))
	handlers.Register(api)

	return router
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Sessions returns the live-session manager.
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// Run serves until the listener fails or Shutdown is called. TLS is used
// when both certificate files are configured.
func (s *Server) Run() error {
	s.logger.Info("Starting server",
		zap.String("addr", s.http.Addr),
		zap.Bool("tls", s.cfg.Server.TLSEnabled()),
		zap.Int("max_sessions", s.cfg.Limits.MaxSessions),
	)

	var err error
	if s.cfg.Server.TLSEnabled() {
		err = s.http.ListenAndServeTLS(s.cfg.Server.TLSCertFile, s.cfg.Server.TLSKeyFile)
	} else {
		err = s.http.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, tears down every session and closes
// the render engine.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	// Hijacked websocket connections are not tracked by http.Server.
	s.sessions.CloseAll()
	if err := s.engine.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close engine: %w", err))
	}
	s.tracer.Close()
	return errors.Join(errs...)
}

func userAgent(cfg *config.Config) string {
	if cfg.Browser.UserAgent != "" {
		return cfg.Browser.UserAgent
	}
	return client.DefaultOptions("").UserAgent
}
