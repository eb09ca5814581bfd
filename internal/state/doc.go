// Package state implements the durable rotation-state store: a single JSON
// document mapping client names to their rotation state, rewritten atomically
// on every mutation.
package state
