// Package status provides a thread-safe status tracker for the dust-relay daemon.
// The daemon writes it to a JSON file on lifecycle events and heartbeats; the
// status command reads that file back.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/dust-relay/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	SampleRate      int
	WindowLength    int
	CenterFrequency int
	ThresholdWatts  int
	KeepOnAfterSec  int
	Calibration     int
	HeartbeatMs     int64
	FrontEnd        string // "synth" or the front end port
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Mode       logic.Mode
	Decision   logic.Decision
	Relay      bool
	PowerWatts uint16
	Counts     logic.TransitionCounts
	Restarts   int
	StartTime  time.Time
	Now        time.Time
	Config     Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets the control state and the latest power reading.
// Called from the device loop once per estimation window.
func (t *Tracker) Update(mode logic.Mode, decision logic.Decision, relay bool, power uint16, counts logic.TransitionCounts) {
	t.mu.Lock()
	t.snap.Mode = mode
	t.snap.Decision = decision
	t.snap.Relay = relay
	t.snap.PowerWatts = power
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetConfig replaces the displayed configuration, after a console edit.
func (t *Tracker) SetConfig(cfg Config) {
	t.mu.Lock()
	t.snap.Config = cfg
	t.mu.Unlock()
}

// AddRestart counts a watchdog restart.
func (t *Tracker) AddRestart() {
	t.mu.Lock()
	t.snap.Restarts++
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
