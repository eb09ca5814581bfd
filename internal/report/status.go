package report

import (
	"sort"
	"time"

	"github.com/relayrotor/relayrotor/internal/state"
)

// ClientStatus is one client's row in the status view.
type ClientStatus struct {
	// Name is the client name.
	Name string `json:"name"`

	// Endpoint is the currently assigned relay endpoint. Empty means the
	// client has never been assigned.
	Endpoint string `json:"endpoint,omitempty"`

	// Location is the current relay's location tag.
	Location string `json:"location,omitempty"`

	// LastLocation is the location most recently vacated by a rotation.
	LastLocation string `json:"last_location,omitempty"`

	// LastRotation is when the relay was last assigned or rotated.
	// Zero means never.
	LastRotation time.Time `json:"last_rotation"`

	// Process is the bridging-process state ("running", "failed", ...).
	// Empty when the view was built without a live supervisor, e.g. from
	// the state file alone.
	Process string `json:"process,omitempty"`

	// Rotations is the number of rotations in the capped history.
	Rotations int `json:"rotations"`
}

// Status is a point-in-time view over all clients' rotation state.
type Status struct {
	// GeneratedAt is when this view was built.
	GeneratedAt time.Time `json:"generated_at"`

	// Clients holds one entry per known client, sorted by name.
	Clients []ClientStatus `json:"clients"`
}

// BuildStatus builds a Status from a state document. procState, when
// non-nil, supplies the live bridging-process state per client; a nil
// procState produces a view from durable state alone.
func BuildStatus(doc state.Document, procState func(name string) string, now time.Time) *Status {
	status := &Status{
		GeneratedAt: now,
		Clients:     make([]ClientStatus, 0, len(doc)),
	}

	for name, st := range doc {
		cs := ClientStatus{
			Name:         name,
			Endpoint:     st.CurrentRelay,
			Location:     st.CurrentLocation,
			LastLocation: st.LastLocation,
			LastRotation: st.LastRotationTime,
			Rotations:    len(st.RotationHistory),
		}
		if procState != nil {
			cs.Process = procState(name)
		}
		status.Clients = append(status.Clients, cs)
	}

	sort.Slice(status.Clients, func(i, j int) bool {
		return status.Clients[i].Name < status.Clients[j].Name
	})
	return status
}
