package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/relayrotor/relayrotor/internal/model"
)

// Default configuration values.
// These are chosen so that a config file only needs to list clients, relays,
// and a cadence to produce a working daemon.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "relayrotor"

	// DefaultListenAddress is where the local HTTP API listens.
	// Loopback only: the API can trigger rotations and must never be
	// reachable from outside the host without explicit configuration.
	DefaultListenAddress = "127.0.0.1:8737"

	// DefaultRotationInterval is used when the config file omits the
	// rotation cadence. One hour keeps relay reuse visible in tests and
	// demos without being aggressive enough to disrupt long-lived flows.
	DefaultRotationInterval = time.Hour

	// DefaultRestartDelay is the pause before restarting a bridging
	// process that exited unexpectedly. Five seconds is long enough to
	// avoid a tight crash loop and short enough that an egress path is
	// not noticeably offline.
	DefaultRestartDelay = 5 * time.Second

	// DefaultMaxRestarts bounds consecutive crash-restarts within one
	// process generation. After this many failed attempts the client is
	// marked failed and left for the operator.
	DefaultMaxRestarts = 3

	// DefaultStopGracePeriod is how long an explicit stop waits between
	// SIGTERM and SIGKILL. It bounds shutdown latency per client.
	DefaultStopGracePeriod = 10 * time.Second

	// DefaultPreflightTimeout bounds the optional SOCKS5 reachability
	// check of a candidate relay before a rotation is committed.
	DefaultPreflightTimeout = 5 * time.Second
)

// Client is one tunnel client entry. The position of a client in the
// configuration list is its stable index, from which the per-client
// interface name, subnet, route table, and rule priority are derived.
type Client struct {
	// Name identifies the client. Must be unique.
	Name string `yaml:"name"`
}

// Rotation holds the rotation cadence as a value plus unit, mirroring how
// operators think about it ("every 6 hours") rather than a raw duration.
type Rotation struct {
	// Every is the numeric cadence value. Must be positive.
	Every int `yaml:"every"`

	// Unit is one of "seconds", "minutes", "hours", "days".
	Unit string `yaml:"unit"`
}

// Interval converts the cadence into a time.Duration.
func (r Rotation) Interval() (time.Duration, error) {
	if r.Every <= 0 {
		return 0, ErrInvalidInterval
	}
	switch r.Unit {
	case "seconds", "second":
		return time.Duration(r.Every) * time.Second, nil
	case "minutes", "minute":
		return time.Duration(r.Every) * time.Minute, nil
	case "hours", "hour":
		return time.Duration(r.Every) * time.Hour, nil
	case "days", "day":
		return time.Duration(r.Every) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidUnit, r.Unit)
	}
}

// Config holds all configuration options for relayrotor.
// It is populated from the YAML config file plus CLI flags and passed through
// the application via dependency injection rather than global state.
type Config struct {
	// Listen is the HTTP API listen address in "host:port" form.
	Listen string `yaml:"listen"`

	// StateFile is the path of the durable rotation-state document.
	// Defaults to <xdg-data>/relayrotor/state.json.
	StateFile string `yaml:"state_file"`

	// AuditDBDir, when non-empty, enables the SQLite rotation audit log
	// in the given directory. The audit log keeps full rotation history
	// beyond the capped in-state history.
	AuditDBDir string `yaml:"audit_db_dir"`

	// TunnelInterface is the name of the always-on tunnel device whose
	// traffic is bridged to the per-client virtual interfaces (e.g. "wg0").
	TunnelInterface string `yaml:"tunnel_interface"`

	// BridgeCommand is the command template launched per client to carry
	// the virtual interface's traffic through the assigned relay.
	// The placeholders {iface} and {endpoint} are substituted per start.
	//
	// Example: "tun2socks -device {iface} -proxy socks5://{endpoint}"
	BridgeCommand string `yaml:"bridge_command"`

	// Rotation is the rotation cadence.
	Rotation Rotation `yaml:"rotation"`

	// Clients is the ordered client list. Order is significant: a
	// client's index determines its interface, subnet, route table, and
	// rule priority, so reordering clients re-homes their paths.
	Clients []Client `yaml:"clients"`

	// Relays is the ordered upstream relay pool. Order is significant:
	// selection ties break toward the first listed relay.
	Relays []model.Relay `yaml:"relays"`

	// Preflight enables a SOCKS5 reachability check of the candidate
	// relay before a rotation is committed. A failing candidate aborts
	// the rotation the same way an empty selection does.
	Preflight bool `yaml:"preflight"`

	// PreflightTimeout bounds each preflight check.
	PreflightTimeout time.Duration `yaml:"preflight_timeout"`

	// NotifyWebhook, when non-empty, is the URL notified after each
	// automatic rotation. Failures are logged and never block rotation.
	NotifyWebhook string `yaml:"notify_webhook"`

	// RestartDelay is the pause before restarting a crashed bridge process.
	RestartDelay time.Duration `yaml:"restart_delay"`

	// MaxRestarts bounds consecutive crash-restarts per generation.
	MaxRestarts int `yaml:"max_restarts"`

	// StopGracePeriod is the SIGTERM-to-SIGKILL grace on explicit stop.
	StopGracePeriod time.Duration `yaml:"stop_grace_period"`

	// Verbose enables debug-level logging.
	Verbose bool `yaml:"-"`
}

// NewConfig creates a Config with default values. Many defaults are non-zero,
// so relying on zero values would produce a broken daemon; the constructor
// also documents what the defaults are.
func NewConfig() *Config {
	return &Config{
		Listen:           DefaultListenAddress,
		StateFile:        filepath.Join(XDGDataDir(), "state.json"),
		TunnelInterface:  "wg0",
		Rotation:         Rotation{Every: 1, Unit: "hours"},
		PreflightTimeout: DefaultPreflightTimeout,
		RestartDelay:     DefaultRestartDelay,
		MaxRestarts:      DefaultMaxRestarts,
		StopGracePeriod:  DefaultStopGracePeriod,
	}
}

// XDGDataDir returns the XDG data directory for relayrotor.
// On Linux: ~/.local/share/relayrotor
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for relayrotor.
// On Linux: ~/.config/relayrotor
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// ClientIndex returns the stable configuration index of the named client,
// or -1 if the client is not configured.
func (c *Config) ClientIndex(name string) int {
	for i, cl := range c.Clients {
		if cl.Name == name {
			return i
		}
	}
	return -1
}

// Validate checks the configuration and returns the first problem found.
// It is called once at startup; any error here is fatal by design, because
// a daemon that silently rotates nothing is worse than one that refuses
// to start.
func (c *Config) Validate() error {
	if len(c.Clients) == 0 {
		return ErrNoClients
	}
	if len(c.Relays) == 0 {
		return ErrNoRelays
	}

	seen := make(map[string]bool, len(c.Clients))
	for _, cl := range c.Clients {
		if cl.Name == "" {
			return ErrMissingClientName
		}
		if seen[cl.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateClient, cl.Name)
		}
		seen[cl.Name] = true
	}

	for _, r := range c.Relays {
		if r.Endpoint == "" {
			return ErrMissingEndpoint
		}
	}

	if _, err := c.Rotation.Interval(); err != nil {
		return err
	}

	if c.BridgeCommand == "" {
		return ErrMissingBridgeCommand
	}
	if c.TunnelInterface == "" {
		return ErrMissingTunnelInterface
	}

	if c.RestartDelay < 0 || c.StopGracePeriod < 0 || c.PreflightTimeout < 0 {
		return ErrNegativeDuration
	}
	if c.MaxRestarts < 0 {
		return ErrNegativeMaxRestarts
	}

	return nil
}
