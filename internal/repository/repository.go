// Package repository persists calendar documents and their listing index
// in a storage engine.
//
// Each calendar body lives under its own key and a separate index key holds
// the Meta of every calendar, so listings never load full documents. Every
// mutation writes the body and the index in one atomic engine batch: readers
// never see an index entry without its body or a body missing from the
// index.
//
// When a write is rejected for quota reasons the repository evicts the
// oldest calendars beyond the retention limit, compresses the document and
// retries once under the compressed key. Either the write lands or the
// caller gets ErrQuotaExceeded; data is never dropped silently.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/JamesPrial/visual-calendar/internal/calendar"
	"github.com/JamesPrial/visual-calendar/internal/codec"
	"github.com/JamesPrial/visual-calendar/internal/storage"
)

// Storage layout.
const (
	IndexKey         = "calendars-meta"
	DocPrefix        = "calendar-"
	CompressedSuffix = "-compressed"
)

// DefaultRetention is the number of calendars Cleanup keeps.
const DefaultRetention = 5

// rawPrefixLen bounds how much of a corrupt record is logged.
const rawPrefixLen = 80

// DocKey returns the key of a calendar's plain body.
func DocKey(id string) string { return DocPrefix + id }

// CompressedKey returns the key of a calendar's compressed body.
func CompressedKey(id string) string { return DocPrefix + id + CompressedSuffix }

// Repository is the calendar store. It is safe for concurrent use;
// mutations are serialized so index updates never interleave.
type Repository struct {
	engine     storage.Engine
	compressor codec.Compressor
	logger     *log.Logger
	now        func() time.Time
	newID      func() string
	retention  int

	mu sync.Mutex
}

// Option configures a Repository.
type Option func(*Repository)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *log.Logger) Option {
	return func(r *Repository) { r.logger = l }
}

// WithClock sets the time source used for createdAt/updatedAt.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// WithIDGenerator sets the function minting new calendar ids.
func WithIDGenerator(newID func() string) Option {
	return func(r *Repository) { r.newID = newID }
}

// WithRetention sets how many calendars Cleanup keeps. Values below 1 are
// ignored.
func WithRetention(n int) Option {
	return func(r *Repository) {
		if n >= 1 {
			r.retention = n
		}
	}
}

// WithCompressor sets the quota fallback compressor. The default is chosen
// by codec.NewCompressor.
func WithCompressor(c codec.Compressor) Option {
	return func(r *Repository) { r.compressor = c }
}

// New returns a Repository over engine.
func New(engine storage.Engine, opts ...Option) *Repository {
	r := &Repository{
		engine:    engine,
		logger:    log.New(io.Discard),
		now:       time.Now,
		newID:     uuid.NewString,
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.compressor == nil {
		r.compressor = codec.NewCompressor()
	}
	return r
}

// Init ensures the index exists and is readable. A missing or corrupt
// index is rebuilt from the stored documents. Init is idempotent and every
// other operation calls it first.
func (r *Repository) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.init(ctx)
}

func (r *Repository) init(ctx context.Context) error {
	_, err := r.readIndex(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, storage.ErrKeyNotFound) && !errors.Is(err, ErrCorrupt) {
		return newError("init", "", KindUnknown, err)
	}
	if errors.Is(err, ErrCorrupt) {
		r.logger.Warn("calendar index unreadable, rebuilding", "key", IndexKey, "err", err)
	}
	if _, err := r.rebuildIndex(ctx); err != nil {
		return newError("init", "", KindUnknown, err)
	}
	return nil
}

// List returns the index in insertion order. It never fails: read errors
// are logged and produce an empty list.
func (r *Repository) List(ctx context.Context) []calendar.Meta {
	if err := r.Init(ctx); err != nil {
		r.logger.Error("failed to initialize calendar index", "err", err)
		return []calendar.Meta{}
	}
	index, err := r.readIndex(ctx)
	if err != nil {
		r.logger.Error("failed to read calendar index", "err", err)
		return []calendar.Meta{}
	}
	return index
}

// readIndex loads the index. A missing key is reported as
// storage.ErrKeyNotFound and an unparseable one as ErrCorrupt.
func (r *Repository) readIndex(ctx context.Context) ([]calendar.Meta, error) {
	raw, err := r.engine.Get(ctx, IndexKey)
	if err != nil {
		return nil, err
	}
	var index []calendar.Meta
	if err := json.Unmarshal(raw, &index); err != nil {
		return nil, fmt.Errorf("%w: index: %v", ErrCorrupt, err)
	}
	if index == nil {
		index = []calendar.Meta{}
	}
	return index, nil
}

func encodeIndex(index []calendar.Meta) ([]byte, error) {
	if index == nil {
		index = []calendar.Meta{}
	}
	data, err := json.Marshal(index)
	if err != nil {
		return nil, fmt.Errorf("failed to encode index: %w", err)
	}
	return data, nil
}

// withMeta returns a copy of index with meta inserted or replaced by id.
func withMeta(index []calendar.Meta, meta calendar.Meta) []calendar.Meta {
	out := make([]calendar.Meta, 0, len(index)+1)
	replaced := false
	for _, m := range index {
		if m.ID == meta.ID {
			if !replaced {
				out = append(out, meta)
				replaced = true
			}
			continue
		}
		out = append(out, m)
	}
	if !replaced {
		out = append(out, meta)
	}
	return out
}

// withoutIDs returns a copy of index without the given ids.
func withoutIDs(index []calendar.Meta, ids ...string) []calendar.Meta {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	out := make([]calendar.Meta, 0, len(index))
	for _, m := range index {
		if !drop[m.ID] {
			out = append(out, m)
		}
	}
	return out
}

func indexed(index []calendar.Meta, id string) bool {
	for _, m := range index {
		if m.ID == id {
			return true
		}
	}
	return false
}

// timestamp returns the current time in UTC at millisecond precision,
// strictly after prev.
func (r *Repository) timestamp(prev time.Time) time.Time {
	t := r.now().UTC().Truncate(time.Millisecond)
	if !t.After(prev) {
		t = prev.UTC().Truncate(time.Millisecond).Add(time.Millisecond)
	}
	return t
}

// parseDocKey splits a body key into its calendar id and encoding.
func parseDocKey(key string) (id string, compressed bool, ok bool) {
	if !strings.HasPrefix(key, DocPrefix) {
		return "", false, false
	}
	id = strings.TrimPrefix(key, DocPrefix)
	if strings.HasSuffix(id, CompressedSuffix) {
		return strings.TrimSuffix(id, CompressedSuffix), true, true
	}
	return id, false, id != ""
}

func rawPrefix(raw []byte) string {
	if len(raw) > rawPrefixLen {
		return string(raw[:rawPrefixLen]) + "..."
	}
	return string(raw)
}
