package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisNamespace is the hash that holds all entries when no
// namespace is configured.
const DefaultRedisNamespace = "visual-calendar"

// maxTxRetries bounds optimistic transaction retries under contention.
const maxTxRetries = 5

// RedisEngine stores all entries as fields of a single Redis hash.
//
// Batches run as WATCH/MULTI/EXEC optimistic transactions on the hash, so a
// batch either lands completely or is retried against fresh state.
type RedisEngine struct {
	client    *redis.Client
	namespace string
	quota     int64
}

// RedisOptions configures NewRedisEngine.
type RedisOptions struct {
	Addr      string
	Password  string
	DB        int
	Namespace string
	Quota     int64
}

// NewRedisEngine connects to Redis and verifies the connection with PING.
func NewRedisEngine(ctx context.Context, opts RedisOptions) (*RedisEngine, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}

	namespace := opts.Namespace
	if namespace == "" {
		namespace = DefaultRedisNamespace
	}
	return &RedisEngine{client: client, namespace: namespace, quota: opts.Quota}, nil
}

func (e *RedisEngine) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := e.client.HGet(ctx, e.namespace, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", key, err)
	}
	return v, nil
}

func (e *RedisEngine) Keys(ctx context.Context, prefix string) ([]string, error) {
	all, err := e.client.HKeys(ctx, e.namespace).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	keys := make([]string, 0, len(all))
	for _, k := range all {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (e *RedisEngine) Usage(ctx context.Context) (int64, error) {
	entries, err := e.client.HGetAll(ctx, e.namespace).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to compute usage: %w", err)
	}
	return usageOf(entries), nil
}

func (e *RedisEngine) Quota() int64 { return e.quota }

func (e *RedisEngine) Apply(ctx context.Context, ops ...Op) error {
	if err := validateOps(ops); err != nil {
		return err
	}

	txf := func(tx *redis.Tx) error {
		if e.quota > 0 {
			entries, err := tx.HGetAll(ctx, e.namespace).Result()
			if err != nil {
				return fmt.Errorf("failed to compute usage: %w", err)
			}
			before := usageOf(entries)
			after := projectUsage(before, ops, func(key string) ([]byte, bool) {
				v, ok := entries[key]
				return []byte(v), ok
			})
			if err := checkQuota(e.quota, before, after); err != nil {
				return err
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, op := range ops {
				if op.Delete {
					pipe.HDel(ctx, e.namespace, op.Key)
					continue
				}
				pipe.HSet(ctx, e.namespace, op.Key, op.Value)
			}
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := e.client.Watch(ctx, txf, e.namespace)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, ErrQuotaExceeded) {
			return fmt.Errorf("failed to apply batch: %w", err)
		}
		return err
	}
	return fmt.Errorf("failed to apply batch: transaction aborted %d times", maxTxRetries)
}

func (e *RedisEngine) Close() error {
	return e.client.Close()
}
