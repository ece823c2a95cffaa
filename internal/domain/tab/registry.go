package tab

import (
	"context"
	"errors"

	"github.com/GriffinCanCode/bastion/internal/engine"
)

var (
	ErrTabLimitExceeded = errors.New("tab limit exceeded")
	ErrNotFound         = errors.New("tab not found")
	ErrIDReused         = errors.New("tab id already used in this session")
)

// Registry owns one session's tabs. It is not safe for concurrent use; the
// session loop is its only caller.
type Registry struct {
	max    int
	tabs   map[engine.TargetID]*Tab
	order  []engine.TargetID
	closed map[engine.TargetID]struct{}
	active engine.TargetID
}

// NewRegistry creates a registry holding at most max live tabs.
func NewRegistry(max int) *Registry {
	return &Registry{
		max:    max,
		tabs:   make(map[engine.TargetID]*Tab),
		closed: make(map[engine.TargetID]struct{}),
	}
}

// Full reports whether another tab would exceed the cap.
func (r *Registry) Full() bool {
	return len(r.tabs) >= r.max
}

// Len returns the number of live tabs.
func (r *Registry) Len() int {
	return len(r.tabs)
}

// Add registers a tab.
func (r *Registry) Add(t *Tab) error {
	if r.Full() {
		return ErrTabLimitExceeded
	}
	id := t.ID()
	if _, ok := r.closed[id]; ok {
		return ErrIDReused
	}
	if _, ok := r.tabs[id]; ok {
		return ErrIDReused
	}
	r.tabs[id] = t
	r.order = append(r.order, id)
	return nil
}

// Get looks up a live tab.
func (r *Registry) Get(id engine.TargetID) (*Tab, bool) {
	t, ok := r.tabs[id]
	return t, ok
}

// Tabs returns live tabs in creation order.
func (r *Registry) Tabs() []*Tab {
	out := make([]*Tab, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tabs[id])
	}
	return out
}

// Remove evicts a tab and retires its id. It reports whether the tab was live.
func (r *Registry) Remove(id engine.TargetID) (*Tab, bool) {
	t, ok := r.tabs[id]
	if !ok {
		return nil, false
	}
	delete(r.tabs, id)
	r.closed[id] = struct{}{}
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	if r.active == id {
		r.active = ""
	}
	return t, true
}

// Close closes and evicts a tab. Unknown ids are ignored.
func (r *Registry) Close(ctx context.Context, id engine.TargetID) error {
	t, ok := r.Get(id)
	if !ok {
		return nil
	}
	err := t.Close(ctx)
	r.Remove(id)
	return err
}

// CloseAll closes every tab.
func (r *Registry) CloseAll(ctx context.Context) {
	for _, t := range r.Tabs() {
		_ = r.Close(ctx, t.ID())
	}
}

// WasClosed reports whether id belonged to a tab that has been removed.
func (r *Registry) WasClosed(id engine.TargetID) bool {
	_, ok := r.closed[id]
	return ok
}

// SetActive marks a live tab as active.
func (r *Registry) SetActive(id engine.TargetID) error {
	if _, ok := r.tabs[id]; !ok {
		return ErrNotFound
	}
	r.active = id
	return nil
}

// Active returns the active tab, if any.
func (r *Registry) Active() (*Tab, bool) {
	if r.active == "" {
		return nil, false
	}
	return r.Get(r.active)
}

// ActiveID returns the active tab id, or "".
func (r *Registry) ActiveID() engine.TargetID {
	return r.active
}
