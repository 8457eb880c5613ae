// Package logic contains the pure control logic of the extractor relay.
// This package has NO external dependencies (no GPIO, serial, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Mode is the operating mode selected with the key.
type Mode string

const (
	ModeOff  Mode = "OFF"
	ModeOn   Mode = "ON"
	ModeAuto Mode = "AUTO"
)

// Decision is the relay state derived from measured power alone,
// independent of the mode.
type Decision string

const (
	DecisionOpen   Decision = "OPEN"
	DecisionClosed Decision = "CLOSED"
)

// HysteresisWatts separates the release threshold from the activation one.
const HysteresisWatts = 20

// OnDelayWindows is the number of estimation windows above threshold that
// must be exceeded before the decision closes.
const OnDelayWindows = 5

// BlinkPeriod is the indicator half-period in key scans in Auto mode.
const BlinkPeriod = 8

// Settings are the thresholds and delays used by ProcessResult.
type Settings struct {
	High     uint16 // activation threshold, watts
	Low      uint16 // release threshold, watts
	OnDelay  uint8  // windows above High to exceed before closing
	OffDelay uint16 // windows at or below Low to exceed before opening
}

// Transition is emitted when the power decision flips.
type Transition struct {
	Timestamp time.Time
	From      Decision
	To        Decision
	Power     uint16
	Mode      Mode
}

// TransitionCounts tracks decision flips since startup.
type TransitionCounts struct {
	Closings int
	Openings int
}

// HeartbeatData contains information for a heartbeat log line.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Mode      Mode
	Decision  Decision
	Counts    TransitionCounts
}
