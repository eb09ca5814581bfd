package api

import (
	"time"

	"github.com/relayrotor/relayrotor/internal/report"
)

// FromStatus converts an internal status view into the public API payload.
func FromStatus(status *report.Status) StatusResponse {
	clients := make([]ClientView, len(status.Clients))
	for i, c := range status.Clients {
		clients[i] = FromClientStatus(c)
	}
	return StatusResponse{
		Clients:     clients,
		GeneratedAt: status.GeneratedAt.UTC().Format(time.RFC3339),
	}
}

// FromClientStatus converts one client's status row.
func FromClientStatus(c report.ClientStatus) ClientView {
	view := ClientView{
		Name:         c.Name,
		Endpoint:     c.Endpoint,
		Location:     c.Location,
		LastLocation: c.LastLocation,
		Process:      c.Process,
		Rotations:    c.Rotations,
	}
	if !c.LastRotation.IsZero() {
		view.LastRotation = c.LastRotation.UTC().Format(time.RFC3339)
	}
	return view
}
