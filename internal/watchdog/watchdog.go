// Package watchdog restarts the pipeline when the foreground loop stops
// completing estimation windows.
package watchdog

import (
	"errors"
	"sync"
	"time"
)

// DefaultTimeout is five estimation windows at the reference rate.
const DefaultTimeout = time.Second

// ErrExpired is returned by the device loop when the watchdog fires.
var ErrExpired = errors.New("watchdog expired")

// Watchdog fires once if it is not kicked within its timeout while armed.
type Watchdog struct {
	timeout time.Duration

	mu       sync.Mutex
	timer    *time.Timer
	deadline time.Time
	expired  chan struct{}
	fired    bool
}

// New creates a disarmed watchdog.
func New(timeout time.Duration) *Watchdog {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Watchdog{
		timeout: timeout,
		expired: make(chan struct{}),
	}
}

// Timeout returns the configured timeout.
func (w *Watchdog) Timeout() time.Duration {
	return w.timeout
}

// Start arms the watchdog. Starting an armed watchdog restarts its timeout.
func (w *Watchdog) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fired {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.deadline = time.Now().Add(w.timeout)
	w.timer = time.AfterFunc(w.timeout, w.fire)
}

// Kick restarts the timeout of an armed watchdog.
func (w *Watchdog) Kick() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil && !w.fired {
		w.deadline = time.Now().Add(w.timeout)
		w.timer.Reset(w.timeout)
	}
}

// Stop disarms the watchdog.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

// Expired is closed when the watchdog fires.
func (w *Watchdog) Expired() <-chan struct{} {
	return w.expired
}

func (w *Watchdog) fire() {
	w.mu.Lock()
	defer w.mu.Unlock()

	// A Stop or Kick that took the lock first wins over a late expiry.
	if w.timer == nil || w.fired || time.Now().Before(w.deadline) {
		return
	}
	w.fired = true
	close(w.expired)
}
