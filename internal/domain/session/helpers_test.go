package session

import (
	"context"
	"net/url"
	"path/filepath"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/GriffinCanCode/bastion/internal/engine"
	"github.com/GriffinCanCode/bastion/internal/engine/enginetest"
	"github.com/GriffinCanCode/bastion/internal/providers/policy"
	"github.com/GriffinCanCode/bastion/internal/shared/paths"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

type outbox struct {
	mu     sync.Mutex
	msgs   []Message
	frames []engine.Frame
}

func (o *outbox) Send(m Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.msgs = append(o.msgs, m)
	return nil
}

func (o *outbox) SendFrame(f engine.Frame) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.frames = append(o.frames, f)
	o.msgs = append(o.msgs, NewFrame(f))
	return nil
}

func (o *outbox) all() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.msgs...)
}

func (o *outbox) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.msgs)
}

func (o *outbox) ofType(typ string) []Message {
	var out []Message
	for _, m := range o.all() {
		if m.MessageType() == typ {
			out = append(out, m)
		}
	}
	return out
}

func (o *outbox) count(typ string) int {
	return len(o.ofType(typ))
}

func (o *outbox) has(want Message) bool {
	return o.indexOf(want, 0) >= 0
}

// indexOf returns the position of the first message equal to want at or
// after from, or -1.
func (o *outbox) indexOf(want Message, from int) int {
	msgs := o.all()
	for i := from; i < len(msgs); i++ {
		if reflect.DeepEqual(msgs[i], want) {
			return i
		}
	}
	return -1
}

// countFrom counts messages equal to want at or after from.
func (o *outbox) countFrom(want Message, from int) int {
	n := 0
	for _, m := range o.all()[from:] {
		if reflect.DeepEqual(m, want) {
			n++
		}
	}
	return n
}

type ticket struct{ released atomic.Int32 }

func (t *ticket) Release() { t.released.Add(1) }

type guardFunc func(ctx context.Context, u *url.URL) error

func (f guardFunc) Check(ctx context.Context, u *url.URL) error { return f(ctx, u) }

type fakeScanner struct {
	mu      sync.Mutex
	verdict policy.Verdict
	report  string
	urls    []string
	files   []string
}

func (f *fakeScanner) ScanURL(_ context.Context, _ string, target string) (policy.Verdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, target)
	return f.verdict, nil
}

func (f *fakeScanner) ScanFile(_ context.Context, _ string, path string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = append(f.files, filepath.Base(path))
	return f.report, nil
}

func (f *fakeScanner) scannedURLs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

type harness struct {
	t      *testing.T
	engine *enginetest.Engine
	out    *outbox
	ticket *ticket
	layout paths.Layout
	s      *Session
}

func newHarness(t *testing.T, configure func(*Deps, *Options)) *harness {
	t.Helper()
	root := t.TempDir()
	h := &harness{
		t:      t,
		engine: enginetest.New(),
		out:    &outbox{},
		ticket: &ticket{},
		layout: paths.Layout{
			DownloadsRoot: filepath.Join(root, "downloads"),
			UploadsRoot:   filepath.Join(root, "uploads"),
		},
	}

	deps := Deps{Engine: h.engine, Layout: h.layout}
	opts := DefaultOptions()
	opts.SettleDelay = 20 * time.Millisecond
	opts.CleanupDelay = 20 * time.Millisecond
	if configure != nil {
		configure(&deps, &opts)
	}

	h.s = New("S1", h.out, h.ticket, deps, opts)
	require.NoError(t, h.s.Start(context.Background()))
	t.Cleanup(func() { _ = h.s.Close() })
	return h
}

func (h *harness) send(cmd Command) {
	h.t.Helper()
	require.NoError(h.t, h.s.Dispatch(context.Background(), cmd))
}

func (h *harness) browser() *enginetest.Context {
	return h.engine.LastContext()
}

// createTab creates a tab and waits until its setup has finished.
func (h *harness) createTab() *enginetest.Target {
	h.t.Helper()
	before := h.out.count(EvtTabCreated)
	h.send(Command{Type: CmdCreateTab})
	require.Eventually(h.t, func() bool { return h.out.count(EvtTabCreated) == before+1 }, waitFor, tick)

	created := h.out.ofType(EvtTabCreated)
	id := created[len(created)-1].(TabEvent).ID
	require.Eventually(h.t, func() bool { return h.out.has(tabEvent(EvtLoadingStop, id)) }, waitFor, tick)
	return h.browser().Target(id)
}

// activate makes target active and waits until it streams.
func (h *harness) activate(target *enginetest.Target) {
	h.t.Helper()
	h.send(Command{Type: CmdActivateTab, ID: target.ID()})
	require.Eventually(h.t, target.Streaming, waitFor, tick)
}

// settle waits long enough for stray asynchronous events to show up.
func settle() {
	time.Sleep(100 * time.Millisecond)
}

type memoryStore struct {
	mu  sync.Mutex
	key string
}

func (m *memoryStore) SetVTKey(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.key = key
	return nil
}

func (m *memoryStore) get() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.key
}
