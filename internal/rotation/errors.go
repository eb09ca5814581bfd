package rotation

import "errors"

// Rotation errors.
// Callers distinguish these with errors.Is(): the API maps ErrClientNotFound
// to a 404 and ErrNoRelayAvailable to a conflict, and the scheduler logs both
// without aborting the sweep.
var (
	// ErrClientNotFound is returned when a rotation is requested for a
	// client that is not in the configuration.
	ErrClientNotFound = errors.New("client not configured")

	// ErrNoRelayAvailable is returned when relay selection produces no
	// eligible candidate, or the candidate fails its preflight check.
	// The client keeps its current assignment.
	ErrNoRelayAvailable = errors.New("no eligible relay available")
)
