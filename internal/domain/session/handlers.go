package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/GriffinCanCode/bastion/internal/domain/tab"
	"github.com/GriffinCanCode/bastion/internal/engine"
	"github.com/GriffinCanCode/bastion/internal/providers/policy"
	"go.uber.org/zap"
)

var errEmptyURL = errors.New("empty URL")

func (s *Session) handle(cmd Command) {
	switch cmd.Type {
	case CmdUpdateConfig:
		s.updateConfig(cmd.Config)
	case CmdCreateTab:
		s.createTab(cmd.URL)
	case CmdActivateTab:
		s.activateTab(cmd.ID)
	case CmdNavigate:
		s.navigate(cmd.URL)
	case CmdStopLoading:
		s.stopLoading()
	case CmdResize:
		s.resize(cmd.Width, cmd.Height)
	case CmdNavigationControl:
		s.navigationControl(cmd.Action)
	case CmdCloseTab:
		s.closeTab(cmd.ID)
	case CmdMouseEvent:
		s.mouseEvent(cmd)
	case CmdKeyboardEvent:
		s.keyboardEvent(cmd)
	case CmdGetContextInfo:
		s.contextInfo(cmd.X, cmd.Y)
	case CmdDownloadURL:
		s.downloadURL(cmd.URL)
	case CmdFileProvided:
		s.fileProvided(cmd.ID, cmd.Filenames)
	case CmdCancelFileRequest:
		s.cancelFileRequest(cmd.ID)
	case CmdManualFileRequest:
		s.manualFileRequest()
	case CmdSaveVTKey:
		s.saveVTKey(cmd.Key)
	default:
		s.logger.Warn("Ignoring unknown command", zap.String("type", cmd.Type))
	}
}

func (s *Session) updateConfig(u *ConfigUpdate) {
	if u == nil {
		return
	}
	if !s.config.Merge(*u) {
		return
	}
	lang := s.config.Language
	for _, t := range s.registry.Tabs() {
		s.submit(t, s.opts.CommandTimeout, func(ctx context.Context, target engine.Target) {
			s.engineFailed(target.ID(), "set language", target.SetLanguage(ctx, lang))
		})
	}
	s.logger.Debug("Config updated", zap.String("language", lang),
		zap.Bool("scan_downloads", s.config.ScanDownloads),
		zap.Bool("scan_navigations", s.config.ScanNavigations))
}

func (s *Session) createTab(rawURL string) {
	if s.registry.Full() {
		s.logger.Debug("Tab limit reached", zap.Int("max", s.opts.MaxTabs))
		return
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.opts.CommandTimeout)
	target, err := s.browser.NewTarget(ctx)
	cancel()
	if err != nil {
		s.logger.Warn("Failed to create target", zap.Error(err))
		return
	}

	t, ok := s.adopt(target)
	if !ok {
		return
	}
	id := t.ID()

	var dest string
	var u *url.URL
	if rawURL = strings.TrimSpace(rawURL); rawURL != "" && rawURL != "about:blank" {
		if dest, u, err = normalizeURL(rawURL); err != nil {
			dest = ""
		}
	}
	// A create always ends in exactly one loading_stop: from the load when
	// one started, otherwise here.
	s.submit(t, s.opts.NavigationTimeout, func(ctx context.Context, target engine.Target) {
		if dest != "" && s.runNavigation(ctx, t, target, dest, u, "") {
			return
		}
		t.MarkReady()
		s.postFor(id, tabEvent(EvtLoadingStop, id))
	})
}

// adopt registers a new target, announces it and applies the session's
// language and viewport before any navigation.
func (s *Session) adopt(target engine.Target) (*tab.Tab, bool) {
	t := tab.New(target)
	if err := s.registry.Add(t); err != nil {
		s.logger.Debug("Discarding target", zap.String("tab_id", string(target.ID())), zap.Error(err))
		ctx, cancel := context.WithTimeout(context.Background(), s.opts.CommandTimeout)
		defer cancel()
		_ = t.Close(ctx)
		return nil, false
	}
	s.deps.Metrics.TabOpened()
	s.emit(tabEvent(EvtTabCreated, t.ID()))

	lang, w, h := s.config.Language, s.viewport[0], s.viewport[1]
	s.submit(t, s.opts.CommandTimeout, func(ctx context.Context, target engine.Target) {
		s.engineFailed(target.ID(), "set language", target.SetLanguage(ctx, lang))
		if w > 0 && h > 0 {
			s.engineFailed(target.ID(), "set viewport", target.SetViewport(ctx, w, h))
		}
		t.MarkReady()
	})
	return t, true
}

func (s *Session) activateTab(id engine.TargetID) {
	t, ok := s.registry.Get(id)
	if !ok {
		return
	}
	_ = s.registry.SetActive(id)

	ctx, cancel := context.WithTimeout(s.ctx, s.opts.CommandTimeout)
	defer cancel()

	target := t.Target()
	s.engineFailed(id, "activate", target.Activate(ctx))
	if w, h := s.viewport[0], s.viewport[1]; w > 0 && h > 0 {
		s.engineFailed(id, "set viewport", target.SetViewport(ctx, w, h))
	}
	s.engineFailed(id, "start screencast", s.relay.Start(ctx, target))
	s.emit(urlChanged(id, t.URL()))
}

func (s *Session) navigate(rawURL string) {
	t, ok := s.registry.Active()
	if !ok {
		return
	}
	target, u, err := normalizeURL(rawURL)
	if err != nil {
		s.logger.Debug("Ignoring invalid URL", zap.String("url", rawURL), zap.Error(err))
		return
	}
	s.startNavigation(t, target, u, true)
}

// startNavigation vets and navigates on the tab's worker so that the events
// it produces stay ordered with the tab's other work.
func (s *Session) startNavigation(t *tab.Tab, target string, u *url.URL, scan bool) {
	var key string
	if scan && s.config.ScanNavigations && s.deps.Scanner != nil {
		key = s.vtKey
	}
	s.submit(t, s.opts.NavigationTimeout, func(ctx context.Context, tgt engine.Target) {
		s.runNavigation(ctx, t, tgt, target, u, key)
	})
}

// runNavigation reports whether the navigation got past the URL policy and
// started loading. An empty scanKey skips the threat scan.
func (s *Session) runNavigation(ctx context.Context, t *tab.Tab, tgt engine.Target, target string, u *url.URL, scanKey string) bool {
	id := t.ID()
	if !s.vetNavigation(ctx, id, target, u) {
		return false
	}
	if scanKey != "" && !s.scanNavigation(ctx, scanKey, target, u) {
		return false
	}
	return s.load(ctx, t, "navigate", func(ctx context.Context) error { return tgt.Navigate(ctx, target) })
}

// load runs a navigation step between loading_start and loading_stop. It
// waits for the document to finish loading so steps that fire no load event,
// such as same-document history moves, still settle. Exactly one
// loading_stop follows: from here or from the engine's load event,
// whichever moves the tab out of Loading first.
func (s *Session) load(ctx context.Context, t *tab.Tab, op string, step func(ctx context.Context) error) bool {
	id := t.ID()
	if !t.MarkLoading() {
		return false
	}
	s.postFor(id, tabEvent(EvtLoadingStart, id))

	err := step(ctx)
	if err == nil {
		op, err = "wait load", t.Target().WaitLoad(ctx)
	}
	s.engineFailed(id, op, err)
	s.settle(t)
	return true
}

// settle ends a load begun by this session.
func (s *Session) settle(t *tab.Tab) {
	if t.MarkReady() {
		s.postFor(t.ID(), tabEvent(EvtLoadingStop, t.ID()))
	}
}

func (s *Session) vetNavigation(ctx context.Context, id engine.TargetID, target string, u *url.URL) bool {
	if s.deps.Guard == nil || u.Scheme == "about" {
		return true
	}
	err := s.deps.Guard.Check(ctx, u)
	var blocked *policy.BlockedError
	if !errors.As(err, &blocked) {
		if err != nil {
			s.logger.Debug("URL check inconclusive", zap.String("url", target), zap.Error(err))
		}
		return true
	}
	s.logger.Info("Navigation blocked", zap.String("tab_id", string(id)), zap.String("url", target), zap.String("reason", blocked.Reason))
	s.deps.Metrics.RecordPolicyBlock("guard")
	s.postFor(id, navigationBlocked(id, target, blocked.Reason))
	return false
}

// scanNavigation consults the threat scanner. Scanner failures let the
// navigation through.
func (s *Session) scanNavigation(ctx context.Context, key, target string, u *url.URL) bool {
	if u.Scheme == "about" || (s.deps.Allowlist != nil && s.deps.Allowlist.Allows(u.Hostname())) {
		return true
	}

	s.post(func() { s.emit(threatNotice(EvtVTScanning, target, "")) })
	verdict, err := s.deps.Scanner.ScanURL(ctx, key, target)
	if err != nil {
		s.logger.Debug("URL scan failed", zap.String("url", target), zap.Error(err))
		return true
	}
	if !verdict.Safe {
		s.logger.Info("Navigation flagged by threat scan", zap.String("url", target))
		s.deps.Metrics.RecordPolicyBlock("threat")
		s.post(func() { s.emit(threatNotice(EvtVTWarning, target, verdict.ReportURL)) })
		return false
	}
	if verdict.ReportURL != "" {
		s.post(func() { s.emit(threatNotice(EvtVTInfo, target, verdict.ReportURL)) })
	}
	return true
}

// stopLoading bypasses the tab's worker, which may be waiting on the very
// load being stopped.
func (s *Session) stopLoading() {
	t, ok := s.registry.Active()
	if !ok {
		return
	}
	id, target, timeout := t.ID(), t.Target(), s.opts.CommandTimeout
	s.spawn(func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		s.engineFailed(id, "stop loading", target.StopLoading(ctx))
		t.MarkReady()
		s.postFor(id, tabEvent(EvtLoadingStop, id))
	})
}

func (s *Session) resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	s.viewport = [2]int{width, height}
	t, ok := s.registry.Active()
	if !ok {
		return
	}
	s.submit(t, s.opts.CommandTimeout, func(ctx context.Context, target engine.Target) {
		s.engineFailed(target.ID(), "set viewport", target.SetViewport(ctx, width, height))
	})
}

func (s *Session) navigationControl(action string) {
	var step func(ctx context.Context, t engine.Target) error
	switch action {
	case "back":
		step = func(ctx context.Context, t engine.Target) error { return t.Back(ctx) }
	case "forward":
		step = func(ctx context.Context, t engine.Target) error { return t.Forward(ctx) }
	case "reload":
		step = func(ctx context.Context, t engine.Target) error { return t.Reload(ctx) }
	default:
		s.logger.Debug("Ignoring navigation action", zap.String("action", action))
		return
	}

	t, ok := s.registry.Active()
	if !ok {
		return
	}
	id := t.ID()
	s.submit(t, s.opts.NavigationTimeout, func(ctx context.Context, target engine.Target) {
		if !s.load(ctx, t, action, func(ctx context.Context) error { return step(ctx, target) }) {
			return
		}
		current, err := target.URL(ctx)
		if err != nil {
			s.engineFailed(id, "url", err)
			return
		}
		if t.SetURL(current) {
			s.postFor(id, urlChanged(id, current))
		}
	})
}

func (s *Session) closeTab(id engine.TargetID) {
	if _, ok := s.registry.Get(id); !ok {
		return
	}
	s.evict(id)
}

// evict stops streaming from a tab, drops its pending file request and
// closes it.
func (s *Session) evict(id engine.TargetID) {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.CommandTimeout)
	defer cancel()

	if s.uploads.Purge(id) {
		s.logger.Debug("Discarding pending file request", zap.String("tab_id", string(id)))
	}
	if s.relay.Current() == id {
		s.relay.Stop(ctx)
	}
	if err := s.registry.Close(ctx, id); err != nil {
		s.engineFailed(id, "close", err)
	}
	s.deps.Metrics.TabClosed()
}

func (s *Session) mouseEvent(cmd Command) {
	action := engine.MouseAction(cmd.Event)
	switch action {
	case engine.MouseMove, engine.MouseDown, engine.MouseUp, engine.MouseWheel:
	default:
		return
	}
	in := engine.MouseInput{Action: action, X: cmd.X, Y: cmd.Y, Button: cmd.Button, DeltaY: cmd.DeltaY}
	if in.Button == "" {
		in.Button = "left"
	}
	s.onActive(func(ctx context.Context, target engine.Target) {
		s.engineFailed(target.ID(), "mouse", target.Mouse(ctx, in))
	})
}

func (s *Session) keyboardEvent(cmd Command) {
	action := engine.KeyAction(cmd.Event)
	if (action != engine.KeyDown && action != engine.KeyUp) || cmd.Key == "" {
		return
	}
	in := engine.KeyInput{Action: action, Key: cmd.Key}
	s.onActive(func(ctx context.Context, target engine.Target) {
		s.engineFailed(target.ID(), "key", target.Key(ctx, in))
	})
}

func (s *Session) contextInfo(x, y float64) {
	s.onActive(func(ctx context.Context, target engine.Target) {
		info, err := target.ContextInfo(ctx, x, y)
		if err != nil {
			s.engineFailed(target.ID(), "context info", err)
			return
		}
		s.postFor(target.ID(), contextMenuInfo(x, y, info))
	})
}

func (s *Session) manualFileRequest() {
	s.onActive(func(ctx context.Context, target engine.Target) {
		s.engineFailed(target.ID(), "open file picker", target.OpenFilePicker(ctx))
	})
}

func (s *Session) saveVTKey(key string) {
	s.vtKey = key
	if s.deps.Vault == nil {
		return
	}
	if err := s.deps.Vault.SetVTKey(key); err != nil {
		s.logger.Warn("Failed to store threat-scan key", zap.Error(err))
		return
	}
	s.logger.Info("Threat-scan key stored")
}

// onActive runs fn on the active tab's worker.
func (s *Session) onActive(fn func(ctx context.Context, target engine.Target)) {
	t, ok := s.registry.Active()
	if !ok {
		return
	}
	s.submit(t, s.opts.CommandTimeout, fn)
}

func (s *Session) submit(t *tab.Tab, timeout time.Duration, fn func(ctx context.Context, target engine.Target)) {
	err := t.Submit(func(ctx context.Context, target engine.Target) {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		fn(ctx, target)
	})
	if err != nil {
		s.logger.Debug("Tab is closing", zap.String("tab_id", string(t.ID())))
	}
}

// engineFailed logs an engine error according to its classification.
func (s *Session) engineFailed(id engine.TargetID, op string, err error) {
	switch engine.Classify(err) {
	case engine.Ok:
	case engine.TargetGone:
		s.logger.Debug("Target gone", zap.String("tab_id", string(id)), zap.String("op", op))
	default:
		s.logger.Debug("Engine call failed", zap.String("tab_id", string(id)), zap.String("op", op), zap.Error(err))
	}
}

// normalizeURL prefixes bare hosts with https:// and rejects URLs that do
// not parse or lack a host.
func normalizeURL(raw string) (string, *url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil, errEmptyURL
	}
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") && !strings.HasPrefix(lower, "about:") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", nil, err
	}
	if u.Scheme != "about" && u.Host == "" {
		return "", nil, fmt.Errorf("missing host in %q", raw)
	}
	return raw, u, nil
}
