package api

import "time"

// Public JSON types returned by the API. These are intentionally decoupled
// from the internal report and model types to preserve API stability and
// allow internal refactors without breaking clients.

// StatusResponse is the top-level payload for GET /v1/status.
type StatusResponse struct {
	Clients     []ClientView `json:"clients"`
	GeneratedAt string       `json:"generated_at"` // RFC3339
}

// ClientView is one client's assignment as exposed by the API.
type ClientView struct {
	Name         string `json:"name"`
	Endpoint     string `json:"endpoint,omitempty"`
	Location     string `json:"location,omitempty"`
	LastLocation string `json:"last_location,omitempty"`
	LastRotation string `json:"last_rotation,omitempty"` // RFC3339, absent if never
	Process      string `json:"process,omitempty"`
	Rotations    int    `json:"rotations"`
}

// RotateResponse is the payload for a successful POST /v1/rotate/{name}.
type RotateResponse struct {
	Client   string `json:"client"`
	Endpoint string `json:"endpoint"`
	Location string `json:"location,omitempty"`
}

// APIError is a standard error payload.
type APIError struct {
	Error     string `json:"error"`
	Timestamp string `json:"timestamp"` // RFC3339
}

// TimeNow abstracts time for tests; overridden in tests.
var TimeNow = func() time.Time { return time.Now() }
