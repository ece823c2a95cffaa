// Package admission gates new control sessions on a shared credential and a
// process-wide concurrency ceiling.
package admission

import (
	"crypto/subtle"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrInvalidCredential = errors.New("invalid credential")
	ErrOverCapacity      = errors.New("max sessions reached")
)

// Controller admits sessions while fewer than its cap are live.
type Controller struct {
	secret []byte
	max    int64
	live   atomic.Int64
}

// New creates a controller for the given secret and session cap.
func New(secret string, maxSessions int) *Controller {
	return &Controller{secret: []byte(secret), max: int64(maxSessions)}
}

// Ticket is held for the lifetime of an admitted session.
type Ticket struct {
	c    *Controller
	once sync.Once
}

// Release frees the ticket's slot. Calls after the first are no-ops.
func (t *Ticket) Release() {
	t.once.Do(func() {
		t.c.live.Add(-1)
	})
}

// Authorize checks a credential without taking a slot.
func (c *Controller) Authorize(credential string) bool {
	return subtle.ConstantTimeCompare([]byte(credential), c.secret) == 1
}

// TryAdmit validates the credential and reserves a slot. It never queues.
func (c *Controller) TryAdmit(credential string) (*Ticket, error) {
	if !c.Authorize(credential) {
		return nil, ErrInvalidCredential
	}
	for {
		n := c.live.Load()
		if n >= c.max {
			return nil, ErrOverCapacity
		}
		if c.live.CompareAndSwap(n, n+1) {
			return &Ticket{c: c}, nil
		}
	}
}

// Live returns the number of admitted sessions.
func (c *Controller) Live() int {
	return int(c.live.Load())
}

// Max returns the session cap.
func (c *Controller) Max() int {
	return int(c.max)
}
