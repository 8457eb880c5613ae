package logic

import (
	"math"
	"time"

	"github.com/sweeney/dust-relay/internal/key"
)

// NewSettings derives the machine settings from the stored parameters:
// the activation threshold in watts, the post-run delay in seconds and the
// estimator's window rate. The post-run delay is rounded to whole windows.
func NewSettings(threshold, keepOnAfter int, windowsPerSecond float64) Settings {
	high := clampUint16(threshold)
	low := uint16(0)
	if high > HysteresisWatts {
		low = high - HysteresisWatts
	}
	return Settings{
		High:     high,
		Low:      low,
		OnDelay:  OnDelayWindows,
		OffDelay: clampUint16(int(math.Round(float64(keepOnAfter) * windowsPerSecond))),
	}
}

// StartMode returns the mode the device boots into.
func StartMode(restartInAuto int) Mode {
	if restartInAuto == 1 {
		return ModeAuto
	}
	return ModeOff
}

// Machine is the relay control state machine. Mode and Decision are kept
// as separate fields so that a mode change never restarts the activation
// delay.
type Machine struct {
	settings Settings
	mode     Mode
	decision Decision
	countOn  uint16
	countOff uint16
	blink    uint8
	led      bool

	startTime     time.Time
	counts        TransitionCounts
	lastHeartbeat time.Time
}

// NewMachine creates a machine in the given mode with the relay open.
// The startTime is used for calculating uptime in heartbeat data.
func NewMachine(settings Settings, mode Mode, startTime time.Time) *Machine {
	return &Machine{
		settings:      settings,
		mode:          mode,
		decision:      DecisionOpen,
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Process runs ProcessResult with the machine's own settings.
func (m *Machine) Process(power uint16, now time.Time) (bool, *Transition) {
	return m.ProcessResult(power, m.settings, now)
}

// ProcessResult updates the decision from one power estimate in watts and
// returns the relay actuation. A Transition is returned when the decision
// flipped.
func (m *Machine) ProcessResult(power uint16, s Settings, now time.Time) (bool, *Transition) {
	from := m.decision

	if m.decision == DecisionOpen && power >= s.High {
		m.countOff = 0
		m.countOn++
		if m.countOn > uint16(s.OnDelay) {
			m.decision = DecisionClosed
		}
	}

	if m.decision == DecisionClosed && power <= s.Low {
		m.countOn = 0
		m.countOff++
		if m.countOff > s.OffDelay {
			m.decision = DecisionOpen
		}
	}

	if m.decision == from {
		return m.Relay(), nil
	}

	if m.decision == DecisionClosed {
		m.counts.Closings++
	} else {
		m.counts.Openings++
	}
	return m.Relay(), &Transition{
		Timestamp: now,
		From:      from,
		To:        m.decision,
		Power:     power,
		Mode:      m.mode,
	}
}

// Relay returns the relay actuation for the current mode and decision.
// true means closed.
func (m *Machine) Relay() bool {
	switch m.mode {
	case ModeOn:
		return true
	case ModeAuto:
		return m.decision == DecisionClosed
	default:
		return false
	}
}

// HandleKey applies a key push to the mode. The short and long cycles are
// not symmetric:
//
//	short: OFF -> ON, ON -> OFF, AUTO -> OFF
//	long:  OFF -> AUTO, ON -> AUTO, AUTO -> ON
func (m *Machine) HandleKey(p key.Push) {
	next := m.mode
	switch p {
	case key.Short:
		switch m.mode {
		case ModeOff:
			next = ModeOn
		case ModeOn, ModeAuto:
			next = ModeOff
		}
	case key.Long:
		switch m.mode {
		case ModeOff, ModeOn:
			next = ModeAuto
		case ModeAuto:
			next = ModeOn
		}
	}
	m.setMode(next)
}

func (m *Machine) setMode(mode Mode) {
	if mode == m.mode {
		return
	}
	m.mode = mode
	m.blink = 0
}

// UpdateIndicator advances the LED pattern by one key scan and returns the
// LED level: off in OFF, on in ON, toggling every BlinkPeriod+1 scans in
// AUTO.
func (m *Machine) UpdateIndicator() bool {
	switch m.mode {
	case ModeOff:
		m.led = false
		m.blink = 0
	case ModeOn:
		m.led = true
		m.blink = 0
	case ModeAuto:
		if m.blink == 0 {
			m.led = !m.led
		}
		m.blink++
		if m.blink > BlinkPeriod {
			m.blink = 0
		}
	}
	return m.led
}

// SetSettings replaces the thresholds and delays. Counters are kept.
func (m *Machine) SetSettings(s Settings) {
	m.settings = s
}

// Settings returns the current thresholds and delays.
func (m *Machine) Settings() Settings {
	return m.settings
}

// Mode returns the current mode.
func (m *Machine) Mode() Mode {
	return m.mode
}

// Decision returns the current power decision.
func (m *Machine) Decision() Decision {
	return m.decision
}

// Counts returns the transition totals since startup.
func (m *Machine) Counts() TransitionCounts {
	return m.counts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (m *Machine) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if now.Sub(m.lastHeartbeat) < interval {
		return nil
	}

	m.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(m.startTime),
		Mode:      m.mode,
		Decision:  m.decision,
		Counts:    m.counts,
	}
}

func clampUint16(v int) uint16 {
	switch {
	case v < 0:
		return 0
	case v > 0xFFFF:
		return 0xFFFF
	}
	return uint16(v)
}
