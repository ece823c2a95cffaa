// Package rod implements engine.Engine over the Chrome DevTools Protocol.
package rod

import (
	"context"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/bastion/internal/engine"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// Config controls how the browser is reached or launched.
type Config struct {
	ControlURL     string
	Bin            string
	Headless       bool
	NoSandbox      bool
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
}

// Engine is a shared Chrome instance.
type Engine struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	cfg      Config
	logger   *zap.Logger
}

// New connects to cfg.ControlURL, or launches a browser when it is empty.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Engine{cfg: cfg, logger: logger}
	controlURL := cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().
			Headless(cfg.Headless).
			NoSandbox(cfg.NoSandbox).
			Set(flags.Flag("disable-dev-shm-usage")).
			Set(flags.Flag("hide-scrollbars")).
			Set(flags.Flag("disable-blink-features"), "AutomationControlled").
			Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", cfg.ViewportWidth, cfg.ViewportHeight))
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		if cfg.UserAgent != "" {
			l = l.Set(flags.Flag("user-agent"), cfg.UserAgent)
		}

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		e.launcher = l
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		if e.launcher != nil {
			e.launcher.Kill()
		}
		return nil, fmt.Errorf("connect browser: %w", err)
	}
	// Detach from the dial context so the browser outlives startup.
	e.browser = browser.Context(context.Background())

	logger.Info("Render engine connected", zap.Bool("launched", e.launcher != nil))
	return e, nil
}

// NewContext opens an incognito browser context with downloads routed to
// opts.DownloadDir.
func (e *Engine) NewContext(ctx context.Context, opts engine.ContextOptions) (engine.Context, error) {
	incognito, err := e.browser.Context(ctx).Incognito()
	if err != nil {
		return nil, fmt.Errorf("create browser context: %w", err)
	}
	b := incognito.Context(context.Background())

	if opts.DownloadDir != "" {
		err = proto.BrowserSetDownloadBehavior{
			Behavior:         proto.BrowserSetDownloadBehaviorBehaviorAllow,
			BrowserContextID: b.BrowserContextID,
			DownloadPath:     opts.DownloadDir,
		}.Call(b)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("set download behavior: %w", err)
		}
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	c := &browserContext{
		browser: b,
		opts:    opts,
		cfg:     e.cfg,
		logger:  e.logger,
		ctx:     watchCtx,
		cancel:  cancel,
		targets: make(map[proto.TargetTargetID]*target),
	}
	if c.opts.OnEvent == nil {
		c.opts.OnEvent = func(engine.Event) {}
	}
	c.watch()
	return c, nil
}

// Close closes the browser and kills it if it was launched here.
func (e *Engine) Close() error {
	err := e.browser.Close()
	if e.launcher != nil {
		e.launcher.Kill()
		e.launcher.Cleanup()
	}
	return err
}

type browserContext struct {
	browser *rod.Browser
	opts    engine.ContextOptions
	cfg     Config
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	targets map[proto.TargetTargetID]*target
}

func (c *browserContext) NewTarget(ctx context.Context) (engine.Target, error) {
	page, err := c.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, wrap(err)
	}
	return c.adopt(page)
}

func (c *browserContext) adopt(page *rod.Page) (*target, error) {
	t := newTarget(c, page.Context(c.ctx))
	if err := t.init(); err != nil {
		_ = page.Close()
		return nil, err
	}

	c.mu.Lock()
	c.targets[page.TargetID] = t
	c.mu.Unlock()
	return t, nil
}

func (c *browserContext) forget(id proto.TargetTargetID) (*target, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.targets[id]
	delete(c.targets, id)
	return t, ok
}

func (c *browserContext) owns(id proto.TargetTargetID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.targets[id]
	return ok
}

// watch follows target creation and destruction to adopt popups and report
// tabs closed from the page side.
func (c *browserContext) watch() {
	_ = proto.TargetSetDiscoverTargets{Discover: true}.Call(c.browser)

	wait := c.browser.Context(c.ctx).EachEvent(
		func(e *proto.TargetTargetCreated) {
			info := e.TargetInfo
			if info == nil || info.Type != proto.TargetTargetInfoTypePage || info.OpenerID == "" {
				return
			}
			if info.BrowserContextID != c.browser.BrowserContextID || !c.owns(info.OpenerID) {
				return
			}
			go c.adoptPopup(info.TargetID, info.OpenerID)
		},
		func(e *proto.TargetTargetDestroyed) {
			if t, ok := c.forget(e.TargetID); ok {
				t.stop()
				c.opts.OnEvent(engine.Destroyed{ID: t.ID()})
			}
		},
	)
	go wait()
}

func (c *browserContext) adoptPopup(id, opener proto.TargetTargetID) {
	page, err := c.browser.PageFromTarget(id)
	if err != nil {
		c.logger.Debug("Popup attach failed", zap.String("target_id", string(id)), zap.Error(err))
		return
	}
	t, err := c.adopt(page)
	if err != nil {
		c.logger.Debug("Popup setup failed", zap.String("target_id", string(id)), zap.Error(err))
		return
	}
	c.opts.OnEvent(engine.PopupOpened{ID: t.ID(), Opener: engine.TargetID(opener), Popup: t})
}

// Close disposes of the incognito context and every page in it.
func (c *browserContext) Close() error {
	c.cancel()
	c.mu.Lock()
	for id, t := range c.targets {
		t.stop()
		delete(c.targets, id)
	}
	c.mu.Unlock()
	return c.browser.Close()
}
