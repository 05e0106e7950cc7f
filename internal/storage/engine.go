// Package storage provides the key-value engines calendar data is persisted
// in.
//
// Every engine stores opaque byte values under string keys and applies
// writes as atomic batches. Engines can be given a byte quota that emulates
// the limited local storage the calendar editor runs against: a batch that
// would push usage past the quota is rejected as a whole.
package storage

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrKeyNotFound is returned by Get when the key does not exist.
	ErrKeyNotFound = errors.New("key not found")

	// ErrQuotaExceeded is returned by Apply when the batch would exceed
	// the configured quota. No operation of the batch is applied.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// Op is a single write in a batch. A Delete op ignores Value.
type Op struct {
	Key    string
	Value  []byte
	Delete bool
}

// Put returns an op storing value under key.
func Put(key string, value []byte) Op {
	return Op{Key: key, Value: value}
}

// Remove returns an op deleting key. Deleting a missing key is not an error.
func Remove(key string) Op {
	return Op{Key: key, Delete: true}
}

// Engine defines the contract for calendar persistence.
//
// Implementations must apply each batch atomically: after Apply returns,
// either every op of the batch is visible or none is.
type Engine interface {
	// Get returns the value stored under key, or ErrKeyNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Keys returns every key starting with prefix, sorted ascending.
	Keys(ctx context.Context, prefix string) ([]string, error)

	// Usage returns the bytes in use, counted as len(key)+len(value)
	// summed over all entries.
	Usage(ctx context.Context) (int64, error)

	// Quota returns the configured byte quota. Zero means unlimited.
	Quota() int64

	// Apply atomically applies ops in order. Returns an error wrapping
	// ErrQuotaExceeded when the result would exceed the quota.
	Apply(ctx context.Context, ops ...Op) error

	// Close releases the engine's resources.
	Close() error
}

// entrySize is the quota cost of one stored entry.
func entrySize(key string, value []byte) int64 {
	return int64(len(key) + len(value))
}

// checkQuota returns a wrapped ErrQuotaExceeded when a batch moving usage
// from before to after grows past quota. Batches that do not grow usage are
// always accepted so that deletes can bring an over-full store back under
// its limit.
func checkQuota(quota, before, after int64) error {
	if quota > 0 && after > quota && after > before {
		return fmt.Errorf("%w: %d bytes needed, %d allowed", ErrQuotaExceeded, after, quota)
	}
	return nil
}

// projectUsage returns the usage after applying ops to a store whose
// current entries are reported by lookup.
func projectUsage(usage int64, ops []Op, lookup func(key string) ([]byte, bool)) int64 {
	pending := make(map[string][]byte, len(ops))
	deleted := make(map[string]bool, len(ops))
	current := func(key string) ([]byte, bool) {
		if deleted[key] {
			return nil, false
		}
		if v, ok := pending[key]; ok {
			return v, true
		}
		return lookup(key)
	}
	for _, op := range ops {
		if old, ok := current(op.Key); ok {
			usage -= entrySize(op.Key, old)
		}
		if op.Delete {
			delete(pending, op.Key)
			deleted[op.Key] = true
			continue
		}
		delete(deleted, op.Key)
		pending[op.Key] = op.Value
		usage += entrySize(op.Key, op.Value)
	}
	return usage
}

func validateOps(ops []Op) error {
	for i, op := range ops {
		if op.Key == "" {
			return fmt.Errorf("op %d: empty key", i)
		}
	}
	return nil
}
