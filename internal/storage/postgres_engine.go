package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresSchemaDDL defines the key-value table used by the PostgreSQL
// engine.
const postgresSchemaDDL = `
CREATE TABLE IF NOT EXISTS calendar_kv (
    key TEXT PRIMARY KEY,
    value BYTEA NOT NULL
);
`

const postgresUsageQuery = `SELECT COALESCE(SUM(octet_length(key) + octet_length(value)), 0)::BIGINT FROM calendar_kv`

// PostgresEngine stores entries in a PostgreSQL table.
//
// Each batch runs in one transaction. Quota checks take a table lock so
// that concurrent writers cannot both pass the check.
type PostgresEngine struct {
	pool  *pgxpool.Pool
	quota int64
}

// NewPostgresEngine connects using connString and initializes the schema.
func NewPostgresEngine(ctx context.Context, connString string, quota int64) (*PostgresEngine, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchemaDDL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &PostgresEngine{pool: pool, quota: quota}, nil
}

func (e *PostgresEngine) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := e.pool.QueryRow(ctx, `SELECT value FROM calendar_kv WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
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

func (e *PostgresEngine) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := e.pool.Query(ctx,
		`SELECT key FROM calendar_kv WHERE left(key, length($1)) = $1 ORDER BY key COLLATE "C"`,
		prefix,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query keys: %w", err)
	}
	defer rows.Close()

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

func (e *PostgresEngine) Usage(ctx context.Context) (int64, error) {
	var n int64
	if err := e.pool.QueryRow(ctx, postgresUsageQuery).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to compute usage: %w", err)
	}
	return n, nil
}

func (e *PostgresEngine) Quota() int64 { return e.quota }

func (e *PostgresEngine) Apply(ctx context.Context, ops ...Op) error {
	if err := validateOps(ops); err != nil {
		return err
	}

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var before int64
	if e.quota > 0 {
		if _, err := tx.Exec(ctx, `LOCK TABLE calendar_kv IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return fmt.Errorf("failed to lock table: %w", err)
		}
		if err := tx.QueryRow(ctx, postgresUsageQuery).Scan(&before); err != nil {
			return fmt.Errorf("failed to compute usage: %w", err)
		}
	}

	batch := &pgx.Batch{}
	for _, op := range ops {
		if op.Delete {
			batch.Queue(`DELETE FROM calendar_kv WHERE key = $1`, op.Key)
			continue
		}
		value := op.Value
		if value == nil {
			value = []byte{}
		}
		batch.Queue(
			`INSERT INTO calendar_kv (key, value) VALUES ($1, $2)
			 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
			op.Key, value,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to apply batch: %w", err)
	}

	if e.quota > 0 {
		var after int64
		if err := tx.QueryRow(ctx, postgresUsageQuery).Scan(&after); err != nil {
			return fmt.Errorf("failed to compute usage: %w", err)
		}
		if err := checkQuota(e.quota, before, after); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func (e *PostgresEngine) Close() error {
	e.pool.Close()
	return nil
}
