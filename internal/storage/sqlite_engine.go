package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // register sqlite driver

	"github.com/JamesPrial/visual-calendar/internal/pathutil"
)

// schemaDDL defines the key-value table used by the SQLite engine.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS kv (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL
);
`

const sqliteUsageQuery = `SELECT COALESCE(SUM(length(CAST(key AS BLOB)) + length(value)), 0) FROM kv`

// SQLiteEngine stores entries in a SQLite database file.
//
// Each batch runs in one transaction. The database uses WAL mode and a
// single connection, which serializes writers within the process.
type SQLiteEngine struct {
	// DBPath is the absolute path to the SQLite database file.
	DBPath string

	db    *sql.DB
	quota int64
}

// NewSQLiteEngine opens (creating if needed) the database at dbPath and
// initializes the schema. Parent directories are created automatically.
func NewSQLiteEngine(dbPath string, quota int64) (*SQLiteEngine, error) {
	if err := pathutil.EnsureParent(dbPath); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteEngine{DBPath: dbPath, db: db, quota: quota}, nil
}

func (e *SQLiteEngine) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := e.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", key, err)
	}
	if value == nil {
		value = []byte{}
	}
	return value, nil
}

func (e *SQLiteEngine) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := e.db.QueryContext(ctx,
		`SELECT key FROM kv WHERE substr(key, 1, length(?)) = ? ORDER BY key`,
		prefix, prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return keys, nil
}

func (e *SQLiteEngine) Usage(ctx context.Context) (int64, error) {
	var n int64
	if err := e.db.QueryRowContext(ctx, sqliteUsageQuery).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to compute usage: %w", err)
	}
	return n, nil
}

func (e *SQLiteEngine) Quota() int64 { return e.quota }

func (e *SQLiteEngine) Apply(ctx context.Context, ops ...Op) error {
	if err := validateOps(ops); err != nil {
		return err
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var before int64
	if e.quota > 0 {
		if err := tx.QueryRowContext(ctx, sqliteUsageQuery).Scan(&before); err != nil {
			return fmt.Errorf("failed to compute usage: %w", err)
		}
	}

	for _, op := range ops {
		if op.Delete {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, op.Key); err != nil {
				return fmt.Errorf("failed to delete %q: %w", op.Key, err)
			}
			continue
		}
		value := op.Value
		if value == nil {
			value = []byte{}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO kv (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			op.Key, value,
		); err != nil {
			return fmt.Errorf("failed to write %q: %w", op.Key, err)
		}
	}

	if e.quota > 0 {
		var after int64
		if err := tx.QueryRowContext(ctx, sqliteUsageQuery).Scan(&after); err != nil {
			return fmt.Errorf("failed to compute usage: %w", err)
		}
		if err := checkQuota(e.quota, before, after); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func (e *SQLiteEngine) Close() error {
	return e.db.Close()
}
