package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/relayrotor/relayrotor/internal/api"
	"github.com/relayrotor/relayrotor/internal/audit"
	"github.com/relayrotor/relayrotor/internal/bridge"
	"github.com/relayrotor/relayrotor/internal/config"
	"github.com/relayrotor/relayrotor/internal/log"
	"github.com/relayrotor/relayrotor/internal/netpath"
	"github.com/relayrotor/relayrotor/internal/notify"
	"github.com/relayrotor/relayrotor/internal/probe"
	"github.com/relayrotor/relayrotor/internal/rotation"
	"github.com/relayrotor/relayrotor/internal/state"
	"github.com/relayrotor/relayrotor/internal/tunnel"
)

// apiShutdownTimeout bounds the HTTP server drain during daemon shutdown.
const apiShutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the rotation daemon",
		Long: `Serve runs the rotation daemon: it assigns every configured client a relay,
rotates them on the configured cadence, supervises each client's network
path and bridging process, and exposes the local HTTP API.

The daemon needs privileges to manage network interfaces, routes, and
iptables rules (typically root or CAP_NET_ADMIN).

Examples:
  # Run with relayrotor.yaml from the current or XDG config directory
  relayrotor serve

  # Run with an explicit config file
  relayrotor serve -c /etc/relayrotor/relayrotor.yaml`,
		Args: cobra.NoArgs,
		RunE: runServeCmd,
	}

	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: relayrotor.yaml in current or XDG config directory)")
	cmd.Flags().String("listen", "",
		"Override the HTTP API listen address")

	return cmd
}

// runServeCmd executes the serve command.
func runServeCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if listen, err := cmd.Flags().GetString("listen"); err == nil && listen != "" {
		cfg.Listen = listen
	}
	cfg.Verbose = getVerboseFlag(cmd)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := log.New(cfg.Verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runServe(ctx, cfg, logger)
}

// loadConfig locates and loads the configuration file for a command.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	path := config.FindConfigFile(configPath)
	if path == "" {
		if configPath != "" {
			return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("%w (run 'relayrotor init' to create one)", config.ErrConfigNotFound)
	}

	return config.LoadFile(path)
}

// runServe wires the daemon together and blocks until ctx is cancelled.
//
// Shutdown order matters: the scheduler stops first so no new rotations
// start, then the API drains, then the supervisor stops every bridging
// process and tears the network paths down.
func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store := state.Open(cfg.StateFile, logger)

	launcher, err := bridge.NewExecLauncher(cfg.BridgeCommand)
	if err != nil {
		return fmt.Errorf("bridge command: %w", err)
	}

	prov := netpath.NewCommandProvisioner(netpath.NewExecCommander(), logger)
	sup := tunnel.NewSupervisor(prov, launcher, cfg.TunnelInterface,
		tunnel.WithLogger(logger),
		tunnel.WithRestartDelay(cfg.RestartDelay),
		tunnel.WithMaxRestarts(cfg.MaxRestarts),
		tunnel.WithStopGracePeriod(cfg.StopGracePeriod),
	)

	opts := []rotation.CoordinatorOption{rotation.WithLogger(logger)}
	if cfg.Preflight {
		opts = append(opts, rotation.WithPreflight(probe.SOCKS5("")))
	}
	if cfg.NotifyWebhook != "" {
		opts = append(opts, rotation.WithNotifier(notify.NewWebhook(cfg.NotifyWebhook)))
	}

	var auditDB *audit.DB
	if cfg.AuditDBDir != "" {
		auditDB, err = audit.Open(cfg.AuditDBDir, audit.DefaultOptions())
		if err != nil {
			// The audit log is an extra; the daemon is still useful without it.
			logger.Warn("audit database unavailable, continuing without it",
				"dir", cfg.AuditDBDir, "error", err)
		} else {
			opts = append(opts, rotation.WithAuditor(auditDB))
			defer func() { _ = auditDB.Close() }()
		}
	}

	coord := rotation.NewCoordinator(cfg, store, sup, opts...)

	interval, err := cfg.Rotation.Interval()
	if err != nil {
		return err
	}
	clients := make([]string, len(cfg.Clients))
	for i, c := range cfg.Clients {
		clients[i] = c.Name
	}
	sched := rotation.NewScheduler(coord, clients, interval, logger)

	apiSrv := api.NewServer(coord, store, api.ServerOptions{
		Addr:      cfg.Listen,
		Logger:    logger,
		ProcState: func(name string) string { return sup.State(name).String() },
	})
	apiSrv.Start()

	logger.Info("daemon started",
		"clients", len(clients),
		"relays", len(cfg.Relays),
		"interval", interval,
		"listen", cfg.Listen)

	err = sched.Run(ctx)

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), apiShutdownTimeout)
	if stopErr := apiSrv.Stop(shutdownCtx); stopErr != nil {
		logger.Warn("api shutdown incomplete", "error", stopErr)
	}
	cancel()
	sup.Shutdown()

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
