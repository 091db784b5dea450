package types

// FirmwareResponse wraps the list returned by GET /firmware.
type FirmwareResponse struct {
	// Firmware images available for selection, in selection-index order.
	Firmware []Firmware `json:"firmware"`
}

// SelectRequest is the payload of POST /select.
type SelectRequest struct {
	// Zero-based index into the firmware list.
	// example: 0
	Index int `json:"index" example:"0"`
}

// AcceptedResponse acknowledges an intent; the outcome is observed via /status.
type AcceptedResponse struct {
	// example: selection
	Intent string `json:"intent" example:"selection"`
	// example: true
	Accepted bool `json:"accepted" example:"true"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: invalid JSON body
	Error string `json:"error" example:"invalid JSON body"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Session identifier, new on every process start.
	// example: 4f6c2b8e-4c7a-4b8e-9a54-0d0f5b7d1c2a
	Session string `json:"session"`
	// Current orchestrator state.
	// example: awaiting_device
	State string `json:"state" example:"awaiting_device"`
	// Human-readable progress line.
	// example: Waiting for a board in BOOTSEL mode
	Progress string `json:"progress" example:"Waiting for a board in BOOTSEL mode"`
	// Last error, if any. A terminal error is reported together with state=terminated.
	Error string `json:"error,omitempty"`
	// Selected firmware, once a selection has been downloaded.
	Selected *Firmware `json:"selected,omitempty"`
	// Device that produced the last presence edge.
	Device *Device `json:"device,omitempty"`
	// Boards flashed in this session.
	// example: 3
	Flashed int `json:"flashed" example:"3"`
	// Boards erased in this session.
	// example: 1
	Nuked int `json:"nuked" example:"1"`
	// Time of the last transition in unix seconds.
	// example: 1700000000
	UpdatedUnix int64 `json:"updated_unix" example:"1700000000"`
	// Uptime of the process in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
}
