package notify

import (
	"sort"
	"sync"
	"testing"
	"time"
)

// fakeClock fires timers only when Advance is called.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Duration
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now + d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now += d
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && t.at <= c.now {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	sort.Slice(due, func(i, j int) bool { return due[i].at < due[j].at })
	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func TestAutoDismissAfterTTL(t *testing.T) {
	clk := &fakeClock{}
	n := New(WithClock(clk))

	n.Show("Keep going!")
	if got := n.Current(); !got.Visible || got.Message != "Keep going!" {
		t.Fatalf("Current() = %+v, want visible 'Keep going!'", got)
	}

	clk.Advance(4999 * time.Millisecond)
	if !n.Visible() {
		t.Fatal("notice should still be visible before 5000ms")
	}

	clk.Advance(time.Millisecond)
	if n.Visible() {
		t.Fatal("notice should be dismissed at 5000ms")
	}
}

func TestCloseCancelsTimer(t *testing.T) {
	clk := &fakeClock{}
	var changes []Notice
	n := New(WithClock(clk), WithOnChange(func(nt Notice) { changes = append(changes, nt) }))

	n.Show("hi")
	n.Close()
	if n.Visible() {
		t.Fatal("notice should be hidden after Close")
	}
	if clk.pending() != 0 {
		t.Errorf("expected no pending timers after Close, got %d", clk.pending())
	}

	// Closing again and letting time pass must not produce more changes.
	n.Close()
	clk.Advance(10 * time.Second)
	if len(changes) != 2 {
		t.Errorf("expected 2 changes (show, close), got %d: %+v", len(changes), changes)
	}
}

func TestCloseWhenHiddenIsNoop(t *testing.T) {
	called := 0
	n := New(WithClock(&fakeClock{}), WithOnChange(func(Notice) { called++ }))
	n.Close()
	n.Close()
	if called != 0 {
		t.Errorf("onChange called %d times for a hidden notice", called)
	}
}

func TestReshowRestartsTimer(t *testing.T) {
	clk := &fakeClock{}
	n := New(WithClock(clk))

	n.Show("first")
	clk.Advance(3 * time.Second)
	n.Show("second")

	// The first timer would have fired at 5s; it must not hide "second".
	clk.Advance(2 * time.Second)
	if got := n.Current(); !got.Visible || got.Message != "second" {
		t.Fatalf("Current() = %+v, want visible 'second'", got)
	}

	clk.Advance(3 * time.Second)
	if n.Visible() {
		t.Fatal("second notice should expire 5s after it was shown")
	}
}

func TestStaleExpireIgnored(t *testing.T) {
	n := New(WithClock(&fakeClock{}))
	n.Show("a")
	n.expire(0)
	if !n.Visible() {
		t.Error("expire with an old generation must not hide the notice")
	}
}

func TestWithTTL(t *testing.T) {
	clk := &fakeClock{}
	n := New(WithClock(clk), WithTTL(time.Second))
	n.Show("short")
	clk.Advance(time.Second)
	if n.Visible() {
		t.Error("notice should honor the configured TTL")
	}
}

func TestRealClock(t *testing.T) {
	done := make(chan struct{})
	n := New(WithTTL(10*time.Millisecond), WithOnChange(func(nt Notice) {
		if !nt.Visible {
			close(done)
		}
	}))
	n.Show("real")
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("real clock never dismissed the notice")
	}
}
