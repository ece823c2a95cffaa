package tab

import (
	"context"
	"errors"
	"sync"

	"github.com/GriffinCanCode/bastion/internal/engine"
)

// ErrClosed is returned when work is submitted to a tab that is closing.
var ErrClosed = errors.New("tab closed")

// State is a tab lifecycle state.
type State int

const (
	Creating State = iota
	Ready
	Loading
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Creating:
		return "creating"
	case Ready:
		return "ready"
	case Loading:
		return "loading"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Work is a unit of engine work run on a tab's queue.
type Work func(ctx context.Context, target engine.Target)

// Tab wraps a render target with its observable state and an ordered work
// queue. Work for one tab runs in submission order; work for different tabs
// runs concurrently.
type Tab struct {
	target engine.Target

	mu    sync.Mutex
	state State
	title string
	url   string
	queue []Work

	wake   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New wraps target and starts its work queue. The tab starts in Creating.
func New(target engine.Target) *Tab {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tab{
		target: target,
		state:  Creating,
		url:    "about:blank",
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go t.run()
	return t
}

// ID returns the engine assigned id.
func (t *Tab) ID() engine.TargetID {
	return t.target.ID()
}

// Target returns the wrapped engine target.
func (t *Tab) Target() engine.Target {
	return t.target
}

// Submit queues work behind everything already submitted to this tab.
func (t *Tab) Submit(w Work) error {
	t.mu.Lock()
	if t.state >= Closing {
		t.mu.Unlock()
		return ErrClosed
	}
	t.queue = append(t.queue, w)
	t.mu.Unlock()

	select {
	case t.wake <- struct{}{}:
	default:
	}
	return nil
}

func (t *Tab) run() {
	defer close(t.done)
	for {
		t.mu.Lock()
		if len(t.queue) == 0 {
			t.mu.Unlock()
			select {
			case <-t.wake:
				continue
			case <-t.ctx.Done():
				return
			}
		}
		w := t.queue[0]
		t.queue[0] = nil
		t.queue = t.queue[1:]
		t.mu.Unlock()

		if t.ctx.Err() != nil {
			return
		}
		w(t.ctx, t.target)
	}
}

// Close stops the work queue, aborting in-flight work, then closes the
// engine target. It is idempotent.
func (t *Tab) Close(ctx context.Context) error {
	t.mu.Lock()
	if t.state >= Closing {
		t.mu.Unlock()
		return nil
	}
	t.state = Closing
	t.queue = nil
	t.mu.Unlock()

	t.cancel()
	select {
	case <-t.done:
	case <-ctx.Done():
	}

	err := t.target.Close(ctx)
	t.mu.Lock()
	t.state = Closed
	t.mu.Unlock()

	if engine.Classify(err) == engine.TargetGone {
		return nil
	}
	return err
}

// State returns the lifecycle state.
func (t *Tab) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// MarkReady moves a creating or loading tab to Ready.
func (t *Tab) MarkReady() bool {
	return t.transition(Ready, Creating, Loading)
}

// MarkLoading moves a ready tab to Loading.
func (t *Tab) MarkLoading() bool {
	return t.transition(Loading, Ready, Creating)
}

func (t *Tab) transition(to State, from ...State) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range from {
		if t.state == s {
			t.state = to
			return true
		}
	}
	return false
}

// Title returns the last known title.
func (t *Tab) Title() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.title
}

// URL returns the last known URL.
func (t *Tab) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url
}

// SetTitle records a title and reports whether it changed.
func (t *Tab) SetTitle(title string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state >= Closing || t.title == title {
		return false
	}
	t.title = title
	return true
}

// SetURL records a URL and reports whether the tab is still live.
func (t *Tab) SetURL(url string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state >= Closing {
		return false
	}
	t.url = url
	return true
}
