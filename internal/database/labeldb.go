package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/chaincrawl/internal/label"
	"github.com/nao1215/chaincrawl/internal/model"
)

// LabelDBFile is the file name of the SQLite label cache inside its directory.
const LabelDBFile = "labels.db"

// LabelDB provides SQLite-based storage for resolved labels and
// per-provider misses. It implements label.Store.
//
// A single file holds the cache for every chain address ever resolved, so
// repeated crawls over overlapping neighbourhoods reuse earlier answers.
type LabelDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

var _ label.Store = (*LabelDB)(nil)

// Options configures LabelDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a LabelDB in the specified directory.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*LabelDB, error) {
	dbPath := filepath.Join(dbDir, LabelDBFile)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// mode=rw refuses to create a missing file, mode=rwc allows it.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ldb := &LabelDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := ldb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return ldb, nil
}

// Path returns the database file path.
func (ldb *LabelDB) Path() string {
	return ldb.dbPath
}

// Close closes the database connection.
func (ldb *LabelDB) Close() error {
	return ldb.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (ldb *LabelDB) createTables() error {
	schema := `
	-- Labels hold the first successful resolution per address
	CREATE TABLE IF NOT EXISTS labels (
		address TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		provider TEXT NOT NULL,
		resolved_at TEXT NOT NULL
	);

	-- Misses record that a provider had nothing for an address
	CREATE TABLE IF NOT EXISTS label_misses (
		provider TEXT NOT NULL,
		address TEXT NOT NULL,
		checked_at TEXT NOT NULL,
		PRIMARY KEY (provider, address)
	);

	CREATE INDEX IF NOT EXISTS idx_labels_provider ON labels(provider);
	`

	_, err := ldb.db.ExecContext(context.Background(), schema)
	return err
}

// GetLabel implements label.Store.
func (ldb *LabelDB) GetLabel(ctx context.Context, addr model.Address) (label.Record, bool, error) {
	query := `
	SELECT label, provider, resolved_at
	FROM labels
	WHERE address = ?
	`

	rec := label.Record{Address: addr}
	var resolvedAt string

	err := ldb.db.QueryRowContext(ctx, query, addr.String()).Scan(&rec.Label, &rec.Provider, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return label.Record{}, false, nil
	}
	if err != nil {
		return label.Record{}, false, fmt.Errorf("failed to get label: %w", err)
	}

	rec.ResolvedAt = parseTimestamp(resolvedAt)
	return rec, true, nil
}

// PutLabel implements label.Store. An existing record for the address is
// replaced.
func (ldb *LabelDB) PutLabel(ctx context.Context, rec label.Record) error {
	query := `
	INSERT INTO labels (address, label, provider, resolved_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(address) DO UPDATE SET
		label = excluded.label,
		provider = excluded.provider,
		resolved_at = excluded.resolved_at
	`

	_, err := ldb.db.ExecContext(ctx, query,
		rec.Address.String(),
		rec.Label,
		rec.Provider,
		formatTimestamp(rec.ResolvedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to put label: %w", err)
	}

	return nil
}

// GetMiss implements label.Store.
func (ldb *LabelDB) GetMiss(ctx context.Context, provider string, addr model.Address) (time.Time, bool, error) {
	query := `
	SELECT checked_at FROM label_misses
	WHERE provider = ? AND address = ?
	`

	var checkedAt string
	err := ldb.db.QueryRowContext(ctx, query, provider, addr.String()).Scan(&checkedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to get miss: %w", err)
	}

	return parseTimestamp(checkedAt), true, nil
}

// PutMiss implements label.Store.
func (ldb *LabelDB) PutMiss(ctx context.Context, provider string, addr model.Address, at time.Time) error {
	query := `
	INSERT INTO label_misses (provider, address, checked_at)
	VALUES (?, ?, ?)
	ON CONFLICT(provider, address) DO UPDATE SET
		checked_at = excluded.checked_at
	`

	if _, err := ldb.db.ExecContext(ctx, query, provider, addr.String(), formatTimestamp(at)); err != nil {
		return fmt.Errorf("failed to put miss: %w", err)
	}

	return nil
}

// CountLabels returns the number of stored labels per provider.
func (ldb *LabelDB) CountLabels(ctx context.Context) (map[string]int, error) {
	query := `
	SELECT provider, COUNT(*) FROM labels
	GROUP BY provider
	ORDER BY provider
	`

	rows, err := ldb.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count labels: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var provider string
		var n int
		if err := rows.Scan(&provider, &n); err != nil {
			return nil, fmt.Errorf("failed to scan label count: %w", err)
		}
		counts[provider] = n
	}

	return counts, rows.Err()
}

// formatTimestamp renders t in UTC with nanosecond precision.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,          // Format written by formatTimestamp
	time.RFC3339,              // Full RFC3339 format
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
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
