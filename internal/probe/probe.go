// Package probe implements the optional preflight reachability check a
// rotation runs against its candidate relay before committing.
package probe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/proxy"

	"github.com/relayrotor/relayrotor/internal/model"
)

// DefaultTarget is the address dialed through the candidate relay. Reaching
// it proves the full path: TCP to the relay, SOCKS5 handshake, and an
// outbound connection on the far side.
const DefaultTarget = "1.1.1.1:443"

// ErrUnsupportedDialer is returned if the SOCKS5 dialer does not support
// context dialing. It cannot happen with the current proxy package and exists
// to fail loudly instead of silently dropping the context.
var ErrUnsupportedDialer = errors.New("socks5 dialer does not support context dialing")

// SOCKS5 returns a preflight function that dials target through the candidate
// relay. An empty target uses DefaultTarget.
//
// Relay endpoints may carry credentials in the form user:pass@host:port;
// they are translated to SOCKS5 username/password authentication.
func SOCKS5(target string) func(ctx context.Context, relay model.Relay) error {
	if target == "" {
		target = DefaultTarget
	}
	return func(ctx context.Context, relay model.Relay) error {
		addr, auth := splitEndpoint(relay.Endpoint)

		d, err := proxy.SOCKS5("tcp", addr, auth, proxy.Direct)
		if err != nil {
			return fmt.Errorf("build socks5 dialer for %s: %w", addr, err)
		}
		cd, ok := d.(proxy.ContextDialer)
		if !ok {
			return ErrUnsupportedDialer
		}

		conn, err := cd.DialContext(ctx, "tcp", target)
		if err != nil {
			return fmt.Errorf("dial %s through relay %s: %w", target, addr, err)
		}
		return conn.Close()
	}
}

// splitEndpoint separates optional user:pass credentials from the relay
// address. Endpoints without credentials return a nil auth.
func splitEndpoint(endpoint string) (string, *proxy.Auth) {
	at := strings.LastIndex(endpoint, "@")
	if at < 0 {
		return endpoint, nil
	}
	addr := endpoint[at+1:]
	user, pass, _ := strings.Cut(endpoint[:at], ":")
	return addr, &proxy.Auth{User: user, Password: pass}
}
