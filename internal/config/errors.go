package config

import "errors"

// Configuration validation errors.
// These are returned by Config.Validate() and Rotation.Interval().
//
// Design decision: package-level sentinel errors rather than error values
// created inside Validate(), so callers can use errors.Is() while still
// getting human-readable messages.
var (
	// ErrNoClients is returned when the config lists no tunnel clients.
	ErrNoClients = errors.New("no clients configured: list at least one client")

	// ErrNoRelays is returned when the relay pool is empty. A daemon
	// without relays can never assign an egress path.
	ErrNoRelays = errors.New("no relays configured: list at least one relay")

	// ErrMissingClientName is returned when a client entry has no name.
	ErrMissingClientName = errors.New("client entry is missing a name")

	// ErrDuplicateClient is returned when two client entries share a name.
	ErrDuplicateClient = errors.New("duplicate client name")

	// ErrMissingEndpoint is returned when a relay entry has no endpoint.
	ErrMissingEndpoint = errors.New("relay entry is missing an endpoint")

	// ErrInvalidInterval is returned when the rotation cadence value is
	// not positive.
	ErrInvalidInterval = errors.New("invalid rotation interval: must be positive")

	// ErrInvalidUnit is returned when the rotation unit is not one of
	// seconds, minutes, hours, days.
	ErrInvalidUnit = errors.New("invalid rotation unit")

	// ErrMissingBridgeCommand is returned when no bridging-process command
	// template is configured.
	ErrMissingBridgeCommand = errors.New("bridge_command is required")

	// ErrMissingTunnelInterface is returned when the tunnel interface name
	// is empty.
	ErrMissingTunnelInterface = errors.New("tunnel_interface is required")

	// ErrNegativeDuration is returned when a duration knob is negative.
	ErrNegativeDuration = errors.New("durations must be non-negative")

	// ErrNegativeMaxRestarts is returned when max_restarts is negative.
	ErrNegativeMaxRestarts = errors.New("max_restarts must be non-negative")
)
