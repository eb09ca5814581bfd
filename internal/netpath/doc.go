// Package netpath provisions per-client OS network paths: a dedicated
// virtual interface, a policy-route table steering the client's traffic
// through it, and the forwarding/NAT rules bridging it to the tunnel device.
//
// All command syntax lives behind this package. Everything above it talks in
// terms of idempotent Apply/Teardown on a Path.
package netpath
