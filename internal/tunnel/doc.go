// Package tunnel supervises per-client egress paths: it owns the keyed
// registry of client tunnels, provisions their network paths, and runs the
// bridging-process lifecycle state machine with bounded crash-restarts.
package tunnel
