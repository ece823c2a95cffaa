package transfer

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/GriffinCanCode/bastion/internal/engine"
	"github.com/GriffinCanCode/bastion/internal/shared/paths"
	"go.uber.org/zap"
)

// Request is an open file chooser awaiting the client.
type Request struct {
	Target   engine.TargetID
	Multiple bool
}

// Uploads tracks pending file requests for one session.
type Uploads struct {
	dir    string
	delay  time.Duration
	logger *zap.Logger

	mu      sync.Mutex
	pending map[engine.TargetID]Request
	timers  map[*time.Timer]struct{}
	closed  bool
}

// NewUploads creates a bridge resolving filenames under dir. Consumed files
// are removed delay after they are handed to the engine.
func NewUploads(dir string, delay time.Duration, logger *zap.Logger) *Uploads {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploads{
		dir:     dir,
		delay:   delay,
		logger:  logger,
		pending: make(map[engine.TargetID]Request),
		timers:  make(map[*time.Timer]struct{}),
	}
}

// Request records a chooser opened on target, replacing any older one.
func (u *Uploads) Request(target engine.TargetID, multiple bool) Request {
	u.mu.Lock()
	defer u.mu.Unlock()
	req := Request{Target: target, Multiple: multiple}
	u.pending[target] = req
	return req
}

// Pending returns the open request for target.
func (u *Uploads) Pending(target engine.TargetID) (Request, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	req, ok := u.pending[target]
	return req, ok
}

// Resolve maps filenames to existing files in the upload directory. When at
// least one exists the request is removed and the paths are returned; when
// none do the request stays open. Single-file choosers get the first match.
func (u *Uploads) Resolve(target engine.TargetID, filenames []string) ([]string, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	req, ok := u.pending[target]
	if !ok {
		return nil, false
	}

	var files []string
	for _, name := range filenames {
		p, err := paths.SafeJoin(u.dir, name)
		if err != nil {
			continue
		}
		if info, err := os.Stat(p); err == nil && info.Mode().IsRegular() {
			files = append(files, p)
		}
	}
	if len(files) == 0 {
		return nil, false
	}
	if !req.Multiple {
		files = files[:1]
	}
	delete(u.pending, target)
	return files, true
}

// Cancel removes the request for target and reports whether one was open.
func (u *Uploads) Cancel(target engine.TargetID) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.pending[target]; !ok {
		return false
	}
	delete(u.pending, target)
	return true
}

// Purge drops the request for a target that is going away.
func (u *Uploads) Purge(target engine.TargetID) bool {
	return u.Cancel(target)
}

// PurgeAll drops every request and returns the affected targets.
func (u *Uploads) PurgeAll() []engine.TargetID {
	u.mu.Lock()
	defer u.mu.Unlock()
	ids := make([]engine.TargetID, 0, len(u.pending))
	for id := range u.pending {
		ids = append(ids, id)
	}
	clear(u.pending)
	return ids
}

// Len returns the number of open requests.
func (u *Uploads) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.pending)
}

// ScheduleCleanup removes files after the grace delay.
func (u *Uploads) ScheduleCleanup(files []string) {
	if len(files) == 0 {
		return
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return
	}

	var timer *time.Timer
	timer = time.AfterFunc(u.delay, func() {
		u.mu.Lock()
		delete(u.timers, timer)
		u.mu.Unlock()

		for _, f := range files {
			if err := os.Remove(f); err != nil && !errors.Is(err, os.ErrNotExist) {
				u.logger.Debug("upload cleanup failed", zap.String("file", f), zap.Error(err))
			}
		}
	})
	u.timers[timer] = struct{}{}
}

// Close stops pending cleanups and drops every request. The caller removes
// the upload directory itself.
func (u *Uploads) Close() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.closed = true
	for t := range u.timers {
		t.Stop()
	}
	clear(u.timers)
	clear(u.pending)
}
