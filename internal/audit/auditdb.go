// Package audit stores the full rotation history in SQLite, beyond the
// capped history kept in the state file.
package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/relayrotor/relayrotor/internal/model"
)

// DB provides SQLite-based storage for rotation audit records.
//
// Design decision: one database file for all clients rather than a file per
// client. Cross-client queries ("what rotated in the last hour") stay a
// single SELECT, and backup is one file copy.
type DB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures DB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates the audit database in dbDir.
// If CreateIfNotExists is false and the database doesn't exist, an error is
// returned instead of silently creating an empty history.
func Open(dbDir string, opts Options) (*DB, error) {
	dbPath := filepath.Join(dbDir, "audit.db")

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("audit database not found at %s", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check audit database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create audit database directory: %w", err)
		}
	}

	// modernc.org/sqlite connection string: mode=rw refuses to create new
	// files, mode=rwc allows creation.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	adb := &DB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := adb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return adb, nil
}

// Close closes the database connection.
func (adb *DB) Close() error {
	return adb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (adb *DB) createTables() error {
	schema := `
	-- Rotations store one row per committed rotation or first assignment.
	CREATE TABLE IF NOT EXISTS rotations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client TEXT NOT NULL,
		rotated_at DATETIME NOT NULL,
		old_relay TEXT,
		new_relay TEXT NOT NULL,
		old_location TEXT,
		new_location TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_rotations_client ON rotations(client);
	CREATE INDEX IF NOT EXISTS idx_rotations_rotated_at ON rotations(rotated_at);
	`

	_, err := adb.db.ExecContext(context.Background(), schema)
	return err
}

// Entry is one stored rotation audit row.
type Entry struct {
	// ID is the unique identifier of the row.
	ID int64

	// Client is the tunnel client that rotated.
	Client string

	// Time is when the rotation was committed.
	Time time.Time

	// OldRelay is the endpoint rotated away from; empty for a first
	// assignment.
	OldRelay string

	// NewRelay is the endpoint rotated onto.
	NewRelay string

	// OldLocation and NewLocation are the location tags involved.
	OldLocation string
	NewLocation string
}

// Record inserts one rotation into the audit log. It satisfies the
// coordinator's Auditor interface.
func (adb *DB) Record(ctx context.Context, client string, rec model.RotationRecord) error {
	query := `
	INSERT INTO rotations (client, rotated_at, old_relay, new_relay, old_location, new_location)
	VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := adb.db.ExecContext(ctx, query,
		client,
		rec.Time.UTC().Format(time.RFC3339Nano),
		rec.OldRelay,
		rec.NewRelay,
		rec.OldLocation,
		rec.NewLocation,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rotation record: %w", err)
	}

	return nil
}

// History returns the newest rotations for a client, most recent first.
// limit <= 0 returns the full history.
func (adb *DB) History(ctx context.Context, client string, limit int) ([]Entry, error) {
	query := `
	SELECT id, client, rotated_at, old_relay, new_relay, old_location, new_location
	FROM rotations
	WHERE client = ?
	ORDER BY rotated_at DESC, id DESC
	`
	args := []interface{}{client}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := adb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rotation history: %w", err)
	}
	defer rows.Close()

	var results []Entry
	for rows.Next() {
		var e Entry
		var rotatedAt string

		err := rows.Scan(
			&e.ID,
			&e.Client,
			&rotatedAt,
			&e.OldRelay,
			&e.NewRelay,
			&e.OldLocation,
			&e.NewLocation,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rotation row: %w", err)
		}

		e.Time = parseTimestamp(rotatedAt)
		results = append(results, e)
	}

	return results, rows.Err()
}

// Clients returns every client that appears in the audit log.
func (adb *DB) Clients(ctx context.Context) ([]string, error) {
	query := `
	SELECT DISTINCT client FROM rotations
	ORDER BY client
	`

	rows, err := adb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list audited clients: %w", err)
	}
	defer rows.Close()

	var clients []string
	for rows.Next() {
		var client string
		if err := rows.Scan(&client); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, client)
	}

	return clients, rows.Err()
}

// CountSince returns how many rotations a client committed at or after t.
func (adb *DB) CountSince(ctx context.Context, client string, t time.Time) (int, error) {
	query := `
	SELECT COUNT(*) FROM rotations
	WHERE client = ? AND rotated_at >= ?
	`

	var count int
	err := adb.db.QueryRowContext(ctx, query, client, t.UTC().Format(time.RFC3339Nano)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count rotations: %w", err)
	}

	return count, nil
}

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("audit record not found")

// Last returns a client's most recent rotation, or ErrNotFound.
func (adb *DB) Last(ctx context.Context, client string) (Entry, error) {
	entries, err := adb.History(ctx, client, 1)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, fmt.Errorf("%w: client %q", ErrNotFound, client)
	}
	return entries[0], nil
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05", // SQLite default datetime format
	"2006-01-02T15:04:05",
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
