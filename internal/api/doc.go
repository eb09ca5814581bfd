// Package api hosts the local HTTP control plane: status queries and manual
// rotation triggers. It binds to loopback by default and carries no auth,
// matching its role as a same-host operator surface.
package api
