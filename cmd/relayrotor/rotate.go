package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"

	"github.com/relayrotor/relayrotor/internal/api"
	"github.com/relayrotor/relayrotor/internal/config"
)

// rotateTimeout bounds the whole manual rotation request, preflight included.
const rotateTimeout = 60 * time.Second

// NewRotateCmd creates the rotate command.
func NewRotateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rotate <client>",
		Short: "Trigger a manual rotation for one client",
		Long: `Rotate asks the running daemon to move a client to its next relay
immediately, outside the regular cadence.

Examples:
  # Rotate a client to the least recently used eligible relay
  relayrotor rotate alice

  # Rotate a client to a specific location
  relayrotor rotate alice --location EU`,
		Args: cobra.ExactArgs(1),
		RunE: runRotateCmd,
	}

	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: relayrotor.yaml in current or XDG config directory)")
	cmd.Flags().StringP("location", "l", "",
		"Restrict selection to relays in exactly this location")
	cmd.Flags().String("addr", "",
		"Daemon API address (default: the configured listen address)")

	return cmd
}

// runRotateCmd executes the rotate command.
func runRotateCmd(cmd *cobra.Command, args []string) error {
	client := args[0]

	location, err := cmd.Flags().GetString("location")
	if err != nil {
		return err
	}

	addr, err := resolveAPIAddr(cmd)
	if err != nil {
		return err
	}

	endpoint := url.URL{
		Scheme: "http",
		Host:   addr,
		Path:   "/" + api.APIVersion + "/rotate/" + url.PathEscape(client),
	}
	if location != "" {
		endpoint.RawQuery = url.Values{"location": {location}}.Encode()
	}

	httpClient := &http.Client{Timeout: rotateTimeout}
	resp, err := httpClient.Post(endpoint.String(), "application/json", nil)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s (is 'relayrotor serve' running?): %w", addr, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var apiErr api.APIError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err != nil || apiErr.Error == "" {
			return fmt.Errorf("rotation failed with status %d", resp.StatusCode)
		}
		return fmt.Errorf("rotation failed: %s", apiErr.Error)
	}

	var result api.RotateResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode daemon response: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Rotated %s to %s", result.Client, result.Endpoint)
	if result.Location != "" {
		fmt.Fprintf(cmd.OutOrStdout(), " (%s)", result.Location)
	}
	fmt.Fprintln(cmd.OutOrStdout())

	return nil
}

// resolveAPIAddr picks the daemon address: flag override first, then the
// config file, then the built-in default.
func resolveAPIAddr(cmd *cobra.Command) (string, error) {
	if addr, err := cmd.Flags().GetString("addr"); err == nil && addr != "" {
		return addr, nil
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		if errors.Is(err, config.ErrConfigNotFound) {
			return config.DefaultListenAddress, nil
		}
		return "", err
	}
	return cfg.Listen, nil
}
