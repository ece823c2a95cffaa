// Package enginetest provides an in-memory engine.Engine for tests.
package enginetest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/GriffinCanCode/bastion/internal/engine"
)

// ErrContextClosed is returned by a Context after Close.
var ErrContextClosed = errors.New("context closed")

// Engine is a fake render engine.
type Engine struct {
	mu       sync.Mutex
	contexts []*Context
	closed   bool
	next     int
}

// New creates a fake engine.
func New() *Engine {
	return &Engine{}
}

func (e *Engine) NewContext(_ context.Context, opts engine.ContextOptions) (engine.Context, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, errors.New("engine closed")
	}
	c := &Context{engine: e, opts: opts, targets: make(map[engine.TargetID]*Target)}
	e.contexts = append(e.contexts, c)
	return c, nil
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Contexts returns every context opened so far.
func (e *Engine) Contexts() []*Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Context(nil), e.contexts...)
}

// LastContext returns the most recently opened context, or nil.
func (e *Engine) LastContext() *Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.contexts) == 0 {
		return nil
	}
	return e.contexts[len(e.contexts)-1]
}

func (e *Engine) nextID() engine.TargetID {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	return engine.TargetID(fmt.Sprintf("T%d", e.next))
}

// Context is a fake browsing context. It keeps an ordered log of screencast
// starts and stops across all of its targets.
type Context struct {
	engine *Engine
	opts   engine.ContextOptions

	mu      sync.Mutex
	targets map[engine.TargetID]*Target
	order   []engine.TargetID
	log     []string
	closed  bool
}

func (c *Context) NewTarget(_ context.Context) (engine.Target, error) {
	return c.newTarget()
}

func (c *Context) newTarget() (*Target, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrContextClosed
	}
	t := &Target{ctx: c, id: c.engine.nextID(), url: "about:blank", errs: make(map[string]error)}
	c.targets[t.id] = t
	c.order = append(c.order, t.id)
	return t, nil
}

func (c *Context) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for _, t := range c.targets {
		t.markClosed()
	}
	return nil
}

// Options returns the options the context was opened with.
func (c *Context) Options() engine.ContextOptions {
	return c.opts
}

// Closed reports whether Close was called.
func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Target returns a target by id.
func (c *Context) Target(id engine.TargetID) *Target {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targets[id]
}

// Targets returns targets in creation order.
func (c *Context) Targets() []*Target {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Target, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.targets[id])
	}
	return out
}

// ScreencastLog returns entries like "start:T1" and "stop:T1" in call order.
func (c *Context) ScreencastLog() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.log...)
}

// Emit delivers an event as if the engine produced it.
func (c *Context) Emit(ev engine.Event) {
	if c.opts.OnEvent != nil {
		c.opts.OnEvent(ev)
	}
}

// OpenPopup creates a target as if opener called window.open.
func (c *Context) OpenPopup(opener engine.TargetID) (*Target, error) {
	t, err := c.newTarget()
	if err != nil {
		return nil, err
	}
	c.Emit(engine.PopupOpened{ID: t.id, Opener: opener, Popup: t})
	return t, nil
}

func (c *Context) record(entry string) {
	c.mu.Lock()
	c.log = append(c.log, entry)
	c.mu.Unlock()
}

// Target is a fake tab. Navigate emits Navigated, DOMReady and Loaded.
// Back and Forward move through the navigation history without emitting
// anything, like same-document history entries.
type Target struct {
	ctx *Context
	id  engine.TargetID

	mu       sync.Mutex
	url      string
	history  []string
	pos      int
	title    string
	lang     string
	width    int
	height   int
	calls    []string
	acks     []int
	frameFn  func(engine.Frame)
	seq      int
	accepted [][]string
	canceled int
	closed   bool
	errs     map[string]error
}

func (t *Target) ID() engine.TargetID { return t.id }

// SetError makes the named method fail with err until cleared with nil.
func (t *Target) SetError(method string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err == nil {
		delete(t.errs, method)
		return
	}
	t.errs[method] = err
}

// SetTitle sets the title reported for the current document.
func (t *Target) SetTitle(title string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.title = title
}

func (t *Target) begin(method string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, method)
	if t.closed {
		return engine.ErrTargetGone
	}
	return t.errs[method]
}

func (t *Target) Navigate(_ context.Context, url string) error {
	if err := t.begin("Navigate"); err != nil {
		return err
	}
	t.mu.Lock()
	if len(t.history) == 0 {
		t.history = []string{t.url}
	}
	t.history = append(t.history[:t.pos+1], url)
	t.pos = len(t.history) - 1
	t.url = url
	t.mu.Unlock()

	t.ctx.Emit(engine.Navigated{ID: t.id, URL: url})
	t.ctx.Emit(engine.DOMReady{ID: t.id})
	t.ctx.Emit(engine.Loaded{ID: t.id})
	return nil
}

func (t *Target) WaitLoad(context.Context) error { return t.begin("WaitLoad") }

func (t *Target) Back(context.Context) error {
	if err := t.begin("Back"); err != nil {
		return err
	}
	t.step(-1)
	return nil
}

func (t *Target) Forward(context.Context) error {
	if err := t.begin("Forward"); err != nil {
		return err
	}
	t.step(1)
	return nil
}

func (t *Target) step(delta int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if next := t.pos + delta; next >= 0 && next < len(t.history) {
		t.pos = next
		t.url = t.history[next]
	}
}
func (t *Target) Reload(context.Context) error {
	if err := t.begin("Reload"); err != nil {
		return err
	}
	t.ctx.Emit(engine.Loaded{ID: t.id})
	return nil
}

func (t *Target) StopLoading(context.Context) error { return t.begin("StopLoading") }

func (t *Target) URL(context.Context) (string, error) {
	if err := t.begin("URL"); err != nil {
		return "", err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url, nil
}

func (t *Target) Title(context.Context) (string, error) {
	if err := t.begin("Title"); err != nil {
		return "", err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.title, nil
}

func (t *Target) Activate(context.Context) error { return t.begin("Activate") }

func (t *Target) SetViewport(_ context.Context, width, height int) error {
	if err := t.begin("SetViewport"); err != nil {
		return err
	}
	t.mu.Lock()
	t.width, t.height = width, height
	t.mu.Unlock()
	return nil
}

func (t *Target) SetLanguage(_ context.Context, lang string) error {
	if err := t.begin("SetLanguage"); err != nil {
		return err
	}
	t.mu.Lock()
	t.lang = lang
	t.mu.Unlock()
	return nil
}

func (t *Target) Mouse(_ context.Context, in engine.MouseInput) error {
	return t.begin("Mouse:" + string(in.Action))
}

func (t *Target) Key(_ context.Context, in engine.KeyInput) error {
	return t.begin("Key:" + string(in.Action) + ":" + in.Key)
}

func (t *Target) ContextInfo(_ context.Context, x, y float64) (engine.ContextInfo, error) {
	if err := t.begin("ContextInfo"); err != nil {
		return engine.ContextInfo{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return engine.ContextInfo{Type: "page", URL: t.url}, nil
}

func (t *Target) StartScreencast(_ context.Context, _ engine.ScreencastOptions, fn func(engine.Frame)) error {
	if err := t.begin("StartScreencast"); err != nil {
		return err
	}
	t.mu.Lock()
	t.frameFn = fn
	t.mu.Unlock()
	t.ctx.record("start:" + string(t.id))
	return nil
}

func (t *Target) AckFrame(_ context.Context, seq int) error {
	if err := t.begin("AckFrame"); err != nil {
		return err
	}
	t.mu.Lock()
	t.acks = append(t.acks, seq)
	t.mu.Unlock()
	return nil
}

func (t *Target) StopScreencast(context.Context) error {
	t.mu.Lock()
	streaming := t.frameFn != nil
	t.frameFn = nil
	t.mu.Unlock()
	if streaming {
		t.ctx.record("stop:" + string(t.id))
	}
	return t.begin("StopScreencast")
}

// PushFrame delivers a frame to the active screencast. It reports false when
// no screencast is running.
func (t *Target) PushFrame(data []byte) bool {
	t.mu.Lock()
	fn := t.frameFn
	t.seq++
	frame := engine.Frame{
		Seq:      t.seq,
		Data:     data,
		Metadata: engine.FrameMetadata{DeviceWidth: float64(t.width), DeviceHeight: float64(t.height), PageScaleFactor: 1},
	}
	t.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(frame)
	return true
}

// Streaming reports whether a screencast is running.
func (t *Target) Streaming() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frameFn != nil
}

// Acks returns acknowledged frame sequence numbers.
func (t *Target) Acks() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int(nil), t.acks...)
}

// OpenChooser emits a file chooser event for this target.
func (t *Target) OpenChooser(multiple bool) {
	t.ctx.Emit(engine.FileChooserOpened{ID: t.id, Multiple: multiple})
}

func (t *Target) AcceptFiles(_ context.Context, paths []string) error {
	if err := t.begin("AcceptFiles"); err != nil {
		return err
	}
	t.mu.Lock()
	t.accepted = append(t.accepted, append([]string(nil), paths...))
	t.mu.Unlock()
	return nil
}

// Accepted returns every path list passed to AcceptFiles.
func (t *Target) Accepted() [][]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([][]string(nil), t.accepted...)
}

func (t *Target) CancelFileChooser(context.Context) error {
	if err := t.begin("CancelFileChooser"); err != nil {
		return err
	}
	t.mu.Lock()
	t.canceled++
	t.mu.Unlock()
	return nil
}

// Canceled returns how many times the chooser was canceled.
func (t *Target) Canceled() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.canceled
}

func (t *Target) OpenFilePicker(context.Context) error {
	if err := t.begin("OpenFilePicker"); err != nil {
		return err
	}
	t.OpenChooser(true)
	return nil
}

func (t *Target) Close(context.Context) error {
	t.mu.Lock()
	t.calls = append(t.calls, "Close")
	t.mu.Unlock()
	t.markClosed()
	return nil
}

func (t *Target) markClosed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.frameFn = nil
}

// Closed reports whether the target was closed.
func (t *Target) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Calls returns the method names invoked on the target, in order.
func (t *Target) Calls() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.calls...)
}

// Language returns the last language applied.
func (t *Target) Language() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lang
}

// Viewport returns the last viewport applied.
func (t *Target) Viewport() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.width, t.height
}

// CurrentURL returns the target's URL without recording a call.
func (t *Target) CurrentURL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url
}

var (
	_ engine.Engine  = (*Engine)(nil)
	_ engine.Context = (*Context)(nil)
	_ engine.Target  = (*Target)(nil)
)
