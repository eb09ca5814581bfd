// Package rotation decides when and to which relay each client moves. The
// Coordinator is the single entry point for rotations, manual and automatic;
// the Scheduler drives the periodic cadence on top of it.
package rotation
