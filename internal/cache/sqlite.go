package cache

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"mts/internal/config"
	"mts/internal/validation"
)

// ErrSchemaDowngrade is returned when the database on disk was written by a
// newer schema version than this build understands.
var ErrSchemaDowngrade = fmt.Errorf("cache schema downgrade not supported")

// SQLiteOptions identifies the database file and store.
type SQLiteOptions struct {
	Dir           string
	Database      string
	Store         string
	SchemaVersion int
}

func (o SQLiteOptions) withDefaults() SQLiteOptions {
	if o.Database == "" {
		o.Database = config.DatabaseName
	}
	if o.Store == "" {
		o.Store = config.StoreName
	}
	if o.SchemaVersion == 0 {
		o.SchemaVersion = config.SchemaVersion
	}
	return o
}

// SQLiteBackend stores records in a single SQLite table.
type SQLiteBackend struct {
	db    *sql.DB
	path  string
	store string
}

// OpenSQLite opens (creating if needed) the database under opts.Dir and
// brings its schema up to opts.SchemaVersion.
func OpenSQLite(ctx context.Context, opts SQLiteOptions) (*SQLiteBackend, error) {
	opts = opts.withDefaults()

	if err := validation.ValidateIdentifier(opts.Store); err != nil {
		return nil, fmt.Errorf("invalid store name %q: %w", opts.Store, err)
	}
	if opts.Dir == "" {
		return nil, fmt.Errorf("cache directory not set")
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	dbPath := filepath.Join(opts.Dir, opts.Database+".db")
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	b := &SQLiteBackend{db: db, path: dbPath, store: opts.Store}

	if err := b.migrate(ctx, opts.SchemaVersion); err != nil {
		db.Close()
		return nil, err
	}

	return b, nil
}

// Path returns the database file location.
func (b *SQLiteBackend) Path() string {
	return b.path
}

// migrate runs the one-time store creation when the on-disk version is older.
func (b *SQLiteBackend) migrate(ctx context.Context, version int) error {
	var current int
	if err := b.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if current > version {
		return fmt.Errorf("%w: database is at version %d, this build supports %d", ErrSchemaDowngrade, current, version)
	}
	if current == version {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin schema upgrade: %w", err)
	}
	defer tx.Rollback()

	schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`, b.store)
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create store %s: %w", b.store, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("failed to set schema version: %w", err)
	}

	return tx.Commit()
}

func (b *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	query := fmt.Sprintf("SELECT value FROM %s WHERE key = ?", b.store)
	err := b.db.QueryRowContext(ctx, query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return []byte(value), true, nil
}

func (b *SQLiteBackend) Put(ctx context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin write: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT OR REPLACE INTO %s (key, value) VALUES (?, ?)", b.store))
	if err != nil {
		return fmt.Errorf("failed to prepare write: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.Key, string(r.Value)); err != nil {
			return fmt.Errorf("failed to write %s: %w", r.Key, err)
		}
	}

	return tx.Commit()
}

func (b *SQLiteBackend) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf("DELETE FROM %s WHERE key = ?", b.store)
	for _, key := range keys {
		if _, err := tx.ExecContext(ctx, query, key); err != nil {
			return fmt.Errorf("failed to delete %s: %w", key, err)
		}
	}

	return tx.Commit()
}

func (b *SQLiteBackend) List(ctx context.Context) ([]Record, error) {
	rows, err := b.db.QueryContext(ctx, fmt.Sprintf("SELECT key, value FROM %s ORDER BY key", b.store))
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, Record{Key: key, Value: []byte(value)})
	}
	return records, rows.Err()
}

func (b *SQLiteBackend) Clear(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", b.store))
	return err
}

func (b *SQLiteBackend) Size(ctx context.Context) (int64, error) {
	var pageCount, pageSize int64
	if err := b.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, err
	}
	if err := b.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, err
	}
	return pageCount * pageSize, nil
}

// Compact reclaims space after deletes.
func (b *SQLiteBackend) Compact(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, "VACUUM")
	return err
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
