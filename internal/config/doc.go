// Package config provides configuration structures and utilities for
// relayrotor. It defines the client list, the upstream relay pool, the
// rotation cadence, and the knobs of the tunnel supervisor.
package config
