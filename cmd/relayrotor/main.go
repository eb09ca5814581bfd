// Package main provides the entry point for the relayrotor CLI.
//
// relayrotor rotates a fleet of tunnel clients across a pool of upstream
// relays on a schedule, keeping per-client network paths and bridging
// processes alive.
//
// Usage:
//
//	relayrotor serve
//	relayrotor status
//	relayrotor rotate <client>
//
// See --help for all available options.
package main

// main is the entry point for relayrotor.
func main() {
	Execute()
}
