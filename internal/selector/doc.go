// Package selector implements relay selection: least-recently-used choice
// over the configured pool, optionally constrained to a location and biased
// against repeating the location a client is currently leaving.
package selector
