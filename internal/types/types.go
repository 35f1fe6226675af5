// Package types provides shared type definitions used across the monitor.
package types

import "fmt"

// Status represents the current detection state of the monitor.
type Status int

const (
	// StatusUndefined is the state before the monitor has announced itself.
	StatusUndefined Status = iota
	// StatusReady indicates the control channel is up and settings were announced.
	StatusReady
	// StatusNotConnected indicates nothing feeds the audio input.
	StatusNotConnected
	// StatusConnected is reported once when the input becomes fed again.
	StatusConnected
	// StatusLevelBelow indicates the last peak was under the trigger level.
	StatusLevelBelow
	// StatusLevelAbove indicates the last peak reached the trigger level.
	StatusLevelAbove
	// StatusSilence indicates the silence period elapsed.
	StatusSilence
	// StatusRunCommand indicates the configured command is running.
	StatusRunCommand
	// StatusGrace indicates detection is suspended after a trigger.
	StatusGrace
	// StatusQuit is terminal.
	StatusQuit
)

var statusNames = [...]string{
	StatusUndefined:    "undefined",
	StatusReady:        "ready",
	StatusNotConnected: "not_connected",
	StatusConnected:    "connected",
	StatusLevelBelow:   "level_below",
	StatusLevelAbove:   "level_above",
	StatusSilence:      "silence",
	StatusRunCommand:   "run_command",
	StatusGrace:        "grace",
	StatusQuit:         "quit",
}

// String returns the snake_case name of the status.
func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// MarshalText encodes the status by name for JSON output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// State is the status together with the payload broadcast for it.
type State struct {
	Status Status  `json:"status"`  // Current detection state
	Count  int     `json:"count"`   // Tick counter relevant to the status (silence, grace, ...)
	PeakDB float64 `json:"peak_db"` // Peak level in dB relevant to the status
}

// VersionInfo contains version comparison data.
type VersionInfo struct {
	Current     string `json:"current"`              // Current version
	Latest      string `json:"latest,omitempty"`     // Latest available version
	UpdateAvail bool   `json:"update_available"`     // Update is available
	Commit      string `json:"commit,omitempty"`     // Git commit hash
	BuildTime   string `json:"build_time,omitempty"` // Build timestamp
}
