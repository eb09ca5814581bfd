package model

import (
	"maps"
	"slices"
	"time"
)

// MaxRotationHistory caps the per-client rotation history.
// When the cap is reached, the oldest entries are evicted first.
//
// Design decision: 100 entries is enough to audit several weeks of rotations
// at common cadences while keeping the state document small. Longer retention
// belongs in the optional audit database, not the state file.
const MaxRotationHistory = 100

// RotationRecord is one entry in a client's rotation history.
type RotationRecord struct {
	// Time is when the rotation was committed.
	Time time.Time `json:"time"`

	// OldRelay is the endpoint the client rotated away from.
	// Empty for a first-time assignment (which is never recorded).
	OldRelay string `json:"old_relay"`

	// NewRelay is the endpoint the client rotated onto.
	NewRelay string `json:"new_relay"`

	// OldLocation is the location tag the client vacated.
	OldLocation string `json:"old_location"`

	// NewLocation is the location tag the client moved to.
	NewLocation string `json:"new_location"`
}

// ClientState is the durable rotation state for one tunnel client.
// There is at most one ClientState per client name; it is created lazily on
// the first assignment and persisted on every mutation.
type ClientState struct {
	// CurrentRelay is the endpoint of the currently assigned relay.
	// Empty means no relay has been assigned yet.
	CurrentRelay string `json:"current_relay,omitempty"`

	// CurrentLocation is the location tag of the current relay.
	CurrentLocation string `json:"current_location,omitempty"`

	// LastLocation is the location most recently vacated by a rotation.
	// It drives the anti-repeat bias in relay selection and is empty
	// until the first rotation away from an assigned relay.
	LastLocation string `json:"last_location,omitempty"`

	// LastRotationTime is when the relay was last assigned or rotated.
	LastRotationTime time.Time `json:"last_rotation_time"`

	// UsageDates maps relay endpoint to the time it was last assigned to
	// this client. Relays absent from the map are treated as never used,
	// which makes them the freshest possible candidates.
	UsageDates map[string]time.Time `json:"usage_dates,omitempty"`

	// RotationHistory is an ordered log of committed rotations,
	// FIFO-capped at MaxRotationHistory entries.
	RotationHistory []RotationRecord `json:"rotation_history,omitempty"`
}

// NewClientState returns an empty state for a client that has never been
// assigned a relay.
func NewClientState() *ClientState {
	return &ClientState{
		UsageDates: make(map[string]time.Time),
	}
}

// MarkUsage records that endpoint was assigned to this client at t.
func (s *ClientState) MarkUsage(endpoint string, t time.Time) {
	if s.UsageDates == nil {
		s.UsageDates = make(map[string]time.Time)
	}
	s.UsageDates[endpoint] = t
}

// RecordRotation appends rec to the rotation history, evicting the oldest
// entry if the history is at capacity.
func (s *ClientState) RecordRotation(rec RotationRecord) {
	s.RotationHistory = append(s.RotationHistory, rec)
	if n := len(s.RotationHistory); n > MaxRotationHistory {
		s.RotationHistory = slices.Delete(s.RotationHistory, 0, n-MaxRotationHistory)
	}
}

// Clone returns a deep copy of the state. The state store hands out clones
// so callers can never mutate the authoritative document from outside the
// store's serialized write path.
func (s *ClientState) Clone() *ClientState {
	if s == nil {
		return nil
	}
	cp := *s
	cp.UsageDates = maps.Clone(s.UsageDates)
	cp.RotationHistory = slices.Clone(s.RotationHistory)
	return &cp
}
