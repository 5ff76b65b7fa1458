// Package ipc is the newline-delimited JSON control protocol between a
// running capture session and later actcue invocations on the same machine.
package ipc

// Request is one control command sent to the active session.
type Request struct {
	Command string `json:"command"`
}

// Status is the live session snapshot returned by the status command.
type Status struct {
	SessionID      string  `json:"session_id,omitempty"`
	ElapsedSeconds float64 `json:"elapsed_seconds,omitempty"`
	Stage          string  `json:"stage,omitempty"`
	Percent        int     `json:"percent,omitempty"`
	Device         string  `json:"device,omitempty"`
}

// Response is the reply to one Request.
type Response struct {
	OK      bool    `json:"ok"`
	State   string  `json:"state,omitempty"`
	Message string  `json:"message,omitempty"`
	Error   string  `json:"error,omitempty"`
	Status  *Status `json:"status,omitempty"`
}
