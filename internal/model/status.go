package model

// DaemonStatus is the latest known state of the supervised daemon.
type DaemonStatus struct {
	Running       bool `json:"running" yaml:"running"`
	PID           int  `json:"pid,omitempty" yaml:"pid,omitempty"` // 0 = none
	Authenticated bool `json:"authenticated" yaml:"authenticated"`
}

// StartResult is returned by the supervisor's start-or-adopt sequence.
type StartResult struct {
	Success bool   `json:"success" yaml:"success"`
	Message string `json:"message" yaml:"message"`
	PID     int    `json:"pid,omitempty" yaml:"pid,omitempty"`
	// Adopted is true when an existing process was adopted (or was already
	// tracked), false when a fresh one was spawned.
	Adopted bool `json:"adopted" yaml:"adopted"`
}

// ConnectionStatus aggregates controller and supervisor state for display.
type ConnectionStatus struct {
	PlayerConnected     bool   `json:"player_connected" yaml:"player_connected"`
	DaemonRunning       bool   `json:"daemon_running" yaml:"daemon_running"`
	DaemonAuthenticated bool   `json:"daemon_authenticated" yaml:"daemon_authenticated"`
	Error               string `json:"error,omitempty" yaml:"error,omitempty"`
}
