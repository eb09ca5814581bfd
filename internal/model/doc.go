// Package model defines the core data types shared across relayrotor:
// upstream relays, per-client rotation state, and rotation history records.
package model
