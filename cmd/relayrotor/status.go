package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/relayrotor/relayrotor/internal/audit"
	"github.com/relayrotor/relayrotor/internal/config"
	"github.com/relayrotor/relayrotor/internal/model"
	"github.com/relayrotor/relayrotor/internal/report"
	"github.com/relayrotor/relayrotor/internal/state"
)

// NewStatusCmd creates the status command.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current relay assignments",
		Long: `Status renders every client's current relay assignment from the durable
state file. It works offline: the daemon does not need to be running, but
without it the bridging-process state is not shown.

Examples:
  # Human-readable status
  relayrotor status

  # JSON for scripting
  relayrotor status --json

  # Markdown for documentation
  relayrotor status --markdown -o status.md

  # Rotation history for one client
  relayrotor status --history alice`,
		Args: cobra.NoArgs,
		RunE: runStatusCmd,
	}

	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: relayrotor.yaml in current or XDG config directory)")
	cmd.Flags().String("state-file", "",
		"Override the state file path")
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write output to specified file path (creates directories if needed)")
	cmd.Flags().String("history", "",
		"Show rotation history for the named client instead of the summary")

	return cmd
}

// runStatusCmd executes the status command.
func runStatusCmd(cmd *cobra.Command, _ []string) error {
	asJSON, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}
	asMarkdown, err := cmd.Flags().GetBool("markdown")
	if err != nil {
		return err
	}
	if asJSON && asMarkdown {
		return errors.New("--json and --markdown are mutually exclusive")
	}

	statePath, err := resolveStateFile(cmd)
	if err != nil {
		return err
	}

	out, closeOut, err := resolveOutput(cmd)
	if err != nil {
		return err
	}
	defer closeOut()

	store := state.Open(statePath, slog.New(slog.DiscardHandler))

	if client, err := cmd.Flags().GetString("history"); err == nil && client != "" {
		if asMarkdown {
			return errors.New("--history does not support --markdown")
		}
		return writeHistory(cmd, store, client, asJSON, out)
	}

	status := report.BuildStatus(store.Snapshot(), nil, time.Now())

	var w report.Writer
	switch {
	case asJSON:
		w = report.NewJSONWriter(out, report.WithPrettyPrint())
	case asMarkdown:
		w = report.NewMarkdownWriter(out)
	default:
		w = report.NewSimpleWriter(out)
	}

	if _, err := w.Write(status); err != nil {
		return fmt.Errorf("render status: %w", err)
	}
	return nil
}

// writeHistory renders a client's rotation history. The audit database holds
// the full history when configured; otherwise the capped history from the
// state file is used.
func writeHistory(cmd *cobra.Command, store *state.Store, client string, asJSON bool, out io.Writer) error {
	records := historyRecords(cmd, store, client)

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	if len(records) == 0 {
		fmt.Fprintf(out, "No recorded rotations for %s.\n", client)
		return nil
	}

	fmt.Fprintf(out, "Rotation history for %s (%d entries, newest first):\n", client, len(records))
	for _, rec := range records {
		from := rec.OldRelay
		if from == "" {
			from = "(first assignment)"
		} else if rec.OldLocation != "" {
			from = fmt.Sprintf("%s (%s)", rec.OldRelay, rec.OldLocation)
		}
		to := rec.NewRelay
		if rec.NewLocation != "" {
			to = fmt.Sprintf("%s (%s)", rec.NewRelay, rec.NewLocation)
		}
		fmt.Fprintf(out, "  %s  %s -> %s\n",
			rec.Time.UTC().Format("2006-01-02 15:04:05 UTC"), from, to)
	}
	return nil
}

// historyRecords collects rotation records for a client, newest first.
func historyRecords(cmd *cobra.Command, store *state.Store, client string) []model.RotationRecord {
	if records := auditHistory(cmd, client); records != nil {
		return records
	}

	st, ok := store.Snapshot()[client]
	if !ok {
		return nil
	}

	// The state file stores history oldest first.
	records := make([]model.RotationRecord, 0, len(st.RotationHistory))
	for i := len(st.RotationHistory) - 1; i >= 0; i-- {
		records = append(records, st.RotationHistory[i])
	}
	return records
}

// auditHistory reads the full history from the audit database if one is
// configured and present. It returns nil when the database is unavailable so
// the caller can fall back to the state file.
func auditHistory(cmd *cobra.Command, client string) []model.RotationRecord {
	cfg, err := loadConfig(cmd)
	if err != nil || cfg.AuditDBDir == "" {
		return nil
	}

	db, err := audit.Open(cfg.AuditDBDir, audit.Options{CreateIfNotExists: false})
	if err != nil {
		return nil
	}
	defer func() { _ = db.Close() }()

	entries, err := db.History(cmd.Context(), client, 0)
	if err != nil {
		return nil
	}

	records := make([]model.RotationRecord, 0, len(entries))
	for _, e := range entries {
		records = append(records, model.RotationRecord{
			Time:        e.Time,
			OldRelay:    e.OldRelay,
			NewRelay:    e.NewRelay,
			OldLocation: e.OldLocation,
			NewLocation: e.NewLocation,
		})
	}
	return records
}

// resolveStateFile picks the state file path: flag override first, then the
// config file, then the built-in default.
func resolveStateFile(cmd *cobra.Command) (string, error) {
	if path, err := cmd.Flags().GetString("state-file"); err == nil && path != "" {
		return path, nil
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		// Status should work without a config file on a fresh host.
		if errors.Is(err, config.ErrConfigNotFound) {
			return config.NewConfig().StateFile, nil
		}
		return "", err
	}
	return cfg.StateFile, nil
}

// resolveOutput returns the destination writer for the rendered status.
func resolveOutput(cmd *cobra.Command) (io.Writer, func(), error) {
	path, err := cmd.Flags().GetString("output")
	if err != nil {
		return nil, nil, err
	}
	if path == "" {
		return cmd.OutOrStdout(), func() {}, nil
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.Create(path) //nolint:gosec // User-provided output path is intentional
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
