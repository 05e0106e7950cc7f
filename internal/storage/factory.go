package storage

import (
	"context"
	"fmt"
	"strings"
)

// Backend names accepted by Open.
const (
	BackendMemory   = "memory"
	BackendJSON     = "json"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Options selects and configures an engine. Paths must already be resolved
// to absolute, validated locations.
type Options struct {
	Backend        string
	JSONPath       string
	SQLitePath     string
	PostgresURL    string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisNamespace string
	QuotaBytes     int64
}

// Open returns the engine named by opts.Backend. The name is matched case
// insensitively; an empty name selects the JSON engine.
func Open(ctx context.Context, opts Options) (Engine, error) {
	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	if backend == "" {
		backend = BackendJSON
	}
	if opts.QuotaBytes < 0 {
		return nil, fmt.Errorf("invalid quota %d: must not be negative", opts.QuotaBytes)
	}

	switch backend {
	case BackendMemory:
		return NewMemoryEngine(opts.QuotaBytes), nil

	case BackendJSON:
		if opts.JSONPath == "" {
			return nil, fmt.Errorf("json backend requires a store path")
		}
		return NewJSONEngine(opts.JSONPath, opts.QuotaBytes), nil

	case BackendSQLite:
		if opts.SQLitePath == "" {
			return nil, fmt.Errorf("sqlite backend requires a database path")
		}
		return NewSQLiteEngine(opts.SQLitePath, opts.QuotaBytes)

	case BackendPostgres:
		if opts.PostgresURL == "" {
			return nil, fmt.Errorf("postgres backend requires a connection URL")
		}
		return NewPostgresEngine(ctx, opts.PostgresURL, opts.QuotaBytes)

	case BackendRedis:
		if opts.RedisAddr == "" {
			return nil, fmt.Errorf("redis backend requires an address")
		}
		return NewRedisEngine(ctx, RedisOptions{
			Addr:      opts.RedisAddr,
			Password:  opts.RedisPassword,
			DB:        opts.RedisDB,
			Namespace: opts.RedisNamespace,
			Quota:     opts.QuotaBytes,
		})

	default:
		return nil, fmt.Errorf("unknown storage backend: %q. Expected one of memory, json, sqlite, postgres, redis", backend)
	}
}
