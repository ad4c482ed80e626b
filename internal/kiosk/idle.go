package kiosk

import (
	"sync"
	"time"
)

// IdleMonitor resets the session after a period without user input. A
// single countdown timer is re-armed on every qualifying event. Expiry is
// suppressed while the guard reports an in-flight checkout, so an active
// charge is never abandoned; the timer simply re-arms and tries again.
type IdleMonitor struct {
	mu      sync.Mutex
	timeout time.Duration
	timer   *time.Timer
	busy    func() bool
	expire  func()
	stopped bool
}

// NewIdleMonitor builds a monitor that calls expire after timeout of
// inactivity, unless busy() is true at that moment.
func NewIdleMonitor(timeout time.Duration, busy func() bool, expire func()) *IdleMonitor {
	return &IdleMonitor{timeout: timeout, busy: busy, expire: expire}
}

// Start arms the countdown. Safe to call once; subsequent input goes
// through Touch.
func (m *IdleMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = false
	m.arm()
}

// Touch restarts the countdown. Called on every pointer/touch/scroll event
// the kiosk client reports.
func (m *IdleMonitor) Touch() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.arm()
}

// Stop disarms the monitor.
func (m *IdleMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	if m.timer != nil {
		m.timer.Stop()
	}
}

func (m *IdleMonitor) arm() {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.timer = time.AfterFunc(m.timeout, m.fire)
}

func (m *IdleMonitor) fire() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	if m.busy() {
		// Mid-payment: do not reset, check again after another interval.
		m.arm()
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.expire()
}
