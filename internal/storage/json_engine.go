package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"
)

// JSONEngine stores all entries in a single JSON object file.
//
// Every batch rewrites the file through a temporary file and os.Rename, so
// readers never observe a partially written store. Values must be valid
// UTF-8 text.
type JSONEngine struct {
	// Path is the absolute path to the JSON store file.
	Path string

	quota int64
	mu    sync.Mutex
}

// NewJSONEngine creates a JSONEngine for the given file path. The file and
// its parent directories are created on first write.
func NewJSONEngine(path string, quota int64) *JSONEngine {
	return &JSONEngine{Path: path, quota: quota}
}

// load reads the store file. A missing or empty file is an empty store.
// Unlike a missing file, an unparseable one is reported so the next write
// does not silently discard it.
func (e *JSONEngine) load() (map[string]string, error) {
	data, err := os.ReadFile(e.Path)
	if errors.Is(err, os.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return make(map[string]string), nil
	}

	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse store file %s: %w", e.Path, err)
	}
	if entries == nil {
		entries = make(map[string]string)
	}
	return entries, nil
}

func (e *JSONEngine) Get(_ context.Context, key string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries, err := e.load()
	if err != nil {
		return nil, err
	}
	v, ok := entries[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return []byte(v), nil
}

func (e *JSONEngine) Keys(_ context.Context, prefix string) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries, err := e.load()
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(entries))
	for k := range entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (e *JSONEngine) Usage(context.Context) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	entries, err := e.load()
	if err != nil {
		return 0, err
	}
	return usageOf(entries), nil
}

func (e *JSONEngine) Quota() int64 { return e.quota }

func (e *JSONEngine) Apply(_ context.Context, ops ...Op) error {
	if err := validateOps(ops); err != nil {
		return err
	}
	for _, op := range ops {
		if !op.Delete && !utf8.Valid(op.Value) {
			return fmt.Errorf("value for %q is not valid UTF-8", op.Key)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	entries, err := e.load()
	if err != nil {
		return err
	}

	before := usageOf(entries)
	after := projectUsage(before, ops, func(key string) ([]byte, bool) {
		v, ok := entries[key]
		return []byte(v), ok
	})
	if err := checkQuota(e.quota, before, after); err != nil {
		return err
	}

	for _, op := range ops {
		if op.Delete {
			delete(entries, op.Key)
			continue
		}
		entries[op.Key] = string(op.Value)
	}
	return e.write(entries)
}

// write atomically replaces the store file with entries.
func (e *JSONEngine) write(entries map[string]string) error {
	dir := filepath.Dir(e.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store: %w", err)
	}
	data = append(data, '\n')

	tmpFile, err := os.CreateTemp(dir, "*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, writeErr := tmpFile.Write(data)
	closeErr := tmpFile.Close()
	if writeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", writeErr)
	}
	if closeErr != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, e.Path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}

func (e *JSONEngine) Close() error { return nil }

func usageOf(entries map[string]string) int64 {
	var n int64
	for k, v := range entries {
		n += int64(len(k) + len(v))
	}
	return n
}
