package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/JamesPrial/visual-calendar/internal/calendar"
	"github.com/JamesPrial/visual-calendar/internal/codec"
	"github.com/JamesPrial/visual-calendar/internal/migrate"
	"github.com/JamesPrial/visual-calendar/internal/storage"
)

// persist writes doc and its index entry in one batch, falling back to
// eviction plus compression when the engine reports the quota exceeded.
// It returns the meta as recorded in the index. Callers hold r.mu.
func (r *Repository) persist(ctx context.Context, op string, doc calendar.Document, index []calendar.Meta) (calendar.Meta, error) {
	id := doc.Meta.ID
	doc.Meta.SchemaVersion = migrate.Current
	doc.Meta.IsCompressed = false

	text, err := codec.Encode(doc)
	if err != nil {
		return calendar.Meta{}, newError(op, id, KindUnknown, err)
	}
	err = r.apply(ctx, index, doc.Meta,
		storage.Put(DocKey(id), []byte(text)),
		storage.Remove(CompressedKey(id)),
	)
	if err == nil {
		return doc.Meta, nil
	}
	if !errors.Is(err, storage.ErrQuotaExceeded) {
		r.logger.Error("failed to write calendar", "op", op, "id", id, "err", err)
		return calendar.Meta{}, newError(op, id, KindUnknown, err)
	}

	r.logger.Warn("storage quota exceeded, evicting and compressing", "op", op, "id", id, "bytes", len(text))
	return r.persistCompressed(ctx, op, doc)
}

// persistCompressed is the quota fallback: evict old calendars, then store
// the compressed body and flag it in the index.
func (r *Repository) persistCompressed(ctx context.Context, op string, doc calendar.Document) (calendar.Meta, error) {
	id := doc.Meta.ID

	if _, err := r.cleanup(ctx, id); err != nil {
		r.logger.Warn("eviction during quota recovery failed", "id", id, "err", err)
	}
	index, err := r.readIndex(ctx)
	if err != nil {
		return calendar.Meta{}, newError(op, id, KindUnknown, err)
	}

	doc.Meta.IsCompressed = true
	text, err := codec.Encode(doc)
	if err != nil {
		return calendar.Meta{}, newError(op, id, KindUnknown, err)
	}
	blob, err := r.compressor.Compress(text)
	if err != nil {
		return calendar.Meta{}, newError(op, id, KindUnknown, err)
	}

	err = r.apply(ctx, index, doc.Meta,
		storage.Put(CompressedKey(id), []byte(blob)),
		storage.Remove(DocKey(id)),
	)
	if errors.Is(err, storage.ErrQuotaExceeded) {
		r.logger.Error("calendar does not fit even compressed", "id", id, "plain", len(text), "compressed", len(blob))
		return calendar.Meta{}, newError(op, id, KindQuota, err)
	}
	if err != nil {
		r.logger.Error("failed to write compressed calendar", "id", id, "err", err)
		return calendar.Meta{}, newError(op, id, KindUnknown, err)
	}

	r.logger.Info("calendar stored compressed", "id", id, "compressor", r.compressor.Name(),
		"plain", len(text), "compressed", len(blob))
	return doc.Meta, nil
}

// apply writes body ops together with the index updated for meta.
func (r *Repository) apply(ctx context.Context, index []calendar.Meta, meta calendar.Meta, ops ...storage.Op) error {
	data, err := encodeIndex(withMeta(index, meta))
	if err != nil {
		return err
	}
	return r.engine.Apply(ctx, append(ops, storage.Put(IndexKey, data))...)
}

// Cleanup evicts the least recently updated calendars beyond the retention
// limit. It reports whether anything was evicted.
func (r *Repository) Cleanup(ctx context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.init(ctx); err != nil {
		return false, err
	}
	evicted, err := r.cleanup(ctx, "")
	if err != nil {
		return false, newError("cleanup", "", KindUnknown, err)
	}
	return len(evicted) > 0, nil
}

// cleanup evicts calendars beyond retention, never evicting keep, and
// returns the evicted ids. Callers hold r.mu.
func (r *Repository) cleanup(ctx context.Context, keep string) ([]string, error) {
	index, err := r.readIndex(ctx)
	if err != nil {
		return nil, err
	}
	if len(index) <= r.retention {
		return nil, nil
	}

	candidates := make([]calendar.Meta, 0, len(index))
	for _, m := range index {
		if m.ID != keep {
			candidates = append(candidates, m)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].UpdatedAt.Before(candidates[j].UpdatedAt)
	})

	excess := len(index) - r.retention
	if excess > len(candidates) {
		excess = len(candidates)
	}
	evicted := make([]string, 0, excess)
	ops := make([]storage.Op, 0, 2*excess+1)
	for _, m := range candidates[:excess] {
		evicted = append(evicted, m.ID)
		ops = append(ops, storage.Remove(DocKey(m.ID)), storage.Remove(CompressedKey(m.ID)))
	}

	data, err := encodeIndex(withoutIDs(index, evicted...))
	if err != nil {
		return nil, err
	}
	ops = append(ops, storage.Put(IndexKey, data))
	if err := r.engine.Apply(ctx, ops...); err != nil {
		return nil, fmt.Errorf("failed to evict calendars: %w", err)
	}

	r.logger.Info("evicted old calendars", "count", len(evicted), "ids", evicted)
	return evicted, nil
}
