package callback

import (
	"errors"
	"sync"
	"time"

	"github.com/rickgao/txrelay/internal/config"
)

// ErrExpired is the error delivered to a continuation when its deadline
// has passed before completion (§4.4, §7).
var ErrExpired = errors.New("callback expired")

// Continuation receives the outcome of one asynchronous upstream
// operation: either a value on success, or a non-nil error on failure
// or expiry. The concrete type of value is purpose-specific (a row map,
// a rendered order, a bool, …).
type Continuation func(value any, err error)

// Callback is a single-shot, deadline-bound continuation (§3 Callback).
type Callback struct {
	ID       string
	Label    config.Label
	Start    time.Time
	Deadline time.Time

	mu      sync.Mutex
	done    bool
	expired bool
	fn      Continuation
}

// New creates a Callback that must complete (or expire) by start+ttl.
func New(id string, label config.Label, start time.Time, ttl time.Duration, fn Continuation) *Callback {
	return &Callback{
		ID:       id,
		Label:    label,
		Start:    start,
		Deadline: start.Add(ttl),
		fn:       fn,
	}
}

// Complete fires the continuation with a success value. A second call
// (the callback already completed or expired) is a no-op logged by the
// caller as a post-timeout arrival — Complete reports whether it was the
// call that actually fired the continuation.
func (c *Callback) Complete(value any) bool {
	return c.finish(value, nil, false)
}

// Fail fires the continuation with an error, outside of expiry (e.g. a
// protocol mismatch). Same single-shot semantics as Complete.
func (c *Callback) Fail(err error) bool {
	return c.finish(nil, err, false)
}

// expire fires the continuation with ErrExpired; called only by the
// Registry's sweep.
func (c *Callback) expire() bool {
	return c.finish(nil, ErrExpired, true)
}

func (c *Callback) finish(value any, err error, expired bool) bool {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return false
	}
	c.done = true
	c.expired = expired
	fn := c.fn
	c.mu.Unlock()

	if fn != nil {
		fn(value, err)
	}
	return true
}

// Done reports whether the callback has already completed or expired.
func (c *Callback) Done() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

// Expired reports whether the callback finished via expiry.
func (c *Callback) Expired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

// isLiveAt reports whether the callback is still eligible to fire at
// instant now: not yet done, and its deadline has not been strictly
// exceeded (a deadline exactly equal to now is still live, §8 Boundary).
func (c *Callback) isLiveAt(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.done && !now.After(c.Deadline)
}
