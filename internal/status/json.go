package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Mode          string     `json:"mode"`
	Decision      string     `json:"decision"`
	Relay         string     `json:"relay"`
	PowerWatts    uint16     `json:"power_watts"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	Restarts      int        `json:"watchdog_restarts"`
	Counts        CountsJSON `json:"transition_counts"`
	Config        ConfigJSON `json:"config"`
}

// CountsJSON is the JSON representation of transition counts.
type CountsJSON struct {
	Closings int `json:"closings"`
	Openings int `json:"openings"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	SampleRate      int    `json:"sample_rate_hz"`
	WindowLength    int    `json:"window_length"`
	CenterFrequency int    `json:"center_frequency_hz"`
	ThresholdWatts  int    `json:"threshold_watts"`
	KeepOnAfterSec  int    `json:"keep_on_after_s"`
	Calibration     int    `json:"calibration"`
	HeartbeatMs     int64  `json:"heartbeat_ms"`
	FrontEnd        string `json:"front_end"`
}

func buildInner(snap Snapshot) StatusInner {
	mode := string(snap.Mode)
	if mode == "" {
		mode = "UNKNOWN"
	}
	decision := string(snap.Decision)
	if decision == "" {
		decision = "UNKNOWN"
	}
	relay := "OPEN"
	if snap.Relay {
		relay = "CLOSED"
	}

	return StatusInner{
		Mode:          mode,
		Decision:      decision,
		Relay:         relay,
		PowerWatts:    snap.PowerWatts,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Restarts:      snap.Restarts,
		Counts: CountsJSON{
			Closings: snap.Counts.Closings,
			Openings: snap.Counts.Openings,
		},
		Config: ConfigJSON{
			SampleRate:      snap.Config.SampleRate,
			WindowLength:    snap.Config.WindowLength,
			CenterFrequency: snap.Config.CenterFrequency,
			ThresholdWatts:  snap.Config.ThresholdWatts,
			KeepOnAfterSec:  snap.Config.KeepOnAfterSec,
			Calibration:     snap.Config.Calibration,
			HeartbeatMs:     snap.Config.HeartbeatMs,
			FrontEnd:        snap.Config.FrontEnd,
		},
	}
}

// FormatJSON returns the indented JSON status (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for a lifecycle event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}

// WriteFile replaces path with data. The file is written next to its final
// location and renamed, so readers never see a partial document.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".status-*")
	if err != nil {
		return fmt.Errorf("create status file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod status file: %w", err)
	}
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write status file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close status file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename status file: %w", err)
	}
	return nil
}

// ReadFile parses a status file written by WriteFile.
func ReadFile(path string) (StatusJSON, error) {
	var s StatusJSON
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read status file: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse status file %s: %w", path, err)
	}
	return s, nil
}
