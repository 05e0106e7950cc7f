package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryEngine keeps all entries in process memory.
//
// It is the default engine for tests and for sessions that do not need to
// outlive the process.
type MemoryEngine struct {
	mu    sync.RWMutex
	data  map[string][]byte
	used  int64
	quota int64
}

// NewMemoryEngine creates an empty MemoryEngine. A quota of 0 is unlimited.
func NewMemoryEngine(quota int64) *MemoryEngine {
	return &MemoryEngine{
		data:  make(map[string][]byte),
		quota: quota,
	}
}

func (e *MemoryEngine) Get(_ context.Context, key string) ([]byte, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	v, ok := e.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

func (e *MemoryEngine) Keys(_ context.Context, prefix string) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	keys := make([]string, 0, len(e.data))
	for k := range e.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (e *MemoryEngine) Usage(context.Context) (int64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.used, nil
}

func (e *MemoryEngine) Quota() int64 { return e.quota }

// SetQuota changes the quota. Existing entries are kept even if they
// already exceed the new limit; only later writes are rejected.
func (e *MemoryEngine) SetQuota(quota int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.quota = quota
}

func (e *MemoryEngine) Apply(_ context.Context, ops ...Op) error {
	if err := validateOps(ops); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	next := projectUsage(e.used, ops, func(key string) ([]byte, bool) {
		v, ok := e.data[key]
		return v, ok
	})
	if err := checkQuota(e.quota, e.used, next); err != nil {
		return err
	}

	for _, op := range ops {
		if op.Delete {
			delete(e.data, op.Key)
			continue
		}
		e.data[op.Key] = append([]byte(nil), op.Value...)
	}
	e.used = next
	return nil
}

func (e *MemoryEngine) Close() error { return nil }
