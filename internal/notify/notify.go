// Package notify implements the self-dismissing motivation notice.
package notify

import (
	"sync"
	"time"
)

// DefaultTTL is how long a notice stays up unless closed earlier.
const DefaultTTL = 5 * time.Second

// Timer is the part of *time.Timer the notifier needs.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// RealClock is backed by the time package.
var RealClock Clock = realClock{}

// Notice is a snapshot of the notifier.
type Notice struct {
	Visible bool   `json:"visible"`
	Message string `json:"message,omitempty"`
}

// Notifier shows one message at a time and hides it after a fixed delay.
type Notifier struct {
	mu       sync.Mutex
	clock    Clock
	ttl      time.Duration
	onChange func(Notice)

	visible bool
	message string
	timer   Timer
	gen     uint64
}

// Option configures a Notifier.
type Option func(*Notifier)

// WithClock replaces the clock.
func WithClock(c Clock) Option {
	return func(n *Notifier) { n.clock = c }
}

// WithTTL sets the auto-dismiss delay.
func WithTTL(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.ttl = d
		}
	}
}

// WithOnChange registers a callback run after every visibility change.
// It is called without the notifier's lock held.
func WithOnChange(f func(Notice)) Option {
	return func(n *Notifier) { n.onChange = f }
}

// New creates a hidden notifier.
func New(opts ...Option) *Notifier {
	n := &Notifier{clock: RealClock, ttl: DefaultTTL}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Show displays msg and (re)starts the dismissal timer.
func (n *Notifier) Show(msg string) {
	n.mu.Lock()
	if n.timer != nil {
		n.timer.Stop()
	}
	n.gen++
	gen := n.gen
	n.visible = true
	n.message = msg
	n.timer = n.clock.AfterFunc(n.ttl, func() { n.expire(gen) })
	snap := n.snapshotLocked()
	n.mu.Unlock()

	n.notify(snap)
}

// Close hides the notice and cancels the pending dismissal. Closing a
// hidden notice does nothing.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	if !n.visible {
		n.mu.Unlock()
		return
	}
	n.visible = false
	snap := n.snapshotLocked()
	n.mu.Unlock()

	n.notify(snap)
}

// Current returns the notifier's state.
func (n *Notifier) Current() Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.snapshotLocked()
}

// Visible reports whether a notice is showing.
func (n *Notifier) Visible() bool {
	return n.Current().Visible
}

// expire runs from the timer. A timer from an earlier Show is ignored.
func (n *Notifier) expire(gen uint64) {
	n.mu.Lock()
	if gen != n.gen || !n.visible {
		n.mu.Unlock()
		return
	}
	n.visible = false
	n.timer = nil
	snap := n.snapshotLocked()
	n.mu.Unlock()

	n.notify(snap)
}

func (n *Notifier) snapshotLocked() Notice {
	if !n.visible {
		return Notice{}
	}
	return Notice{Visible: true, Message: n.message}
}

func (n *Notifier) notify(snap Notice) {
	if n.onChange != nil {
		n.onChange(snap)
	}
}
