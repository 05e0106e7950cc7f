package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/JamesPrial/visual-calendar/internal/calendar"
	"github.com/JamesPrial/visual-calendar/internal/storage"
)

// Report describes how the index and the stored bodies relate.
type Report struct {
	// Indexed is the number of index entries.
	Indexed int

	// Stored is the number of calendar ids with at least one body.
	Stored int

	// Dangling lists index entries without a body.
	Dangling []string

	// Orphans lists bodies missing from the index.
	Orphans []string

	// Corrupt lists ids whose body cannot be decoded.
	Corrupt []string

	// Duplicates lists ids that appear more than once in the index.
	Duplicates []string

	// DoubleEncoded lists ids stored both plain and compressed.
	DoubleEncoded []string
}

// OK reports whether no inconsistency was found.
func (r Report) OK() bool {
	return len(r.Dangling) == 0 && len(r.Orphans) == 0 && len(r.Corrupt) == 0 &&
		len(r.Duplicates) == 0 && len(r.DoubleEncoded) == 0
}

// Stats summarizes storage use.
type Stats struct {
	Calendars  int
	Compressed int
	UsedBytes  int64
	QuotaBytes int64
}

// storedBody records which encodings exist for one id.
type storedBody struct {
	plain      bool
	compressed bool
}

// scanBodies lists every stored body keyed by calendar id.
func (r *Repository) scanBodies(ctx context.Context) (map[string]storedBody, error) {
	keys, err := r.engine.Keys(ctx, DocPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendar keys: %w", err)
	}
	bodies := make(map[string]storedBody, len(keys))
	for _, key := range keys {
		id, compressed, ok := parseDocKey(key)
		if !ok {
			continue
		}
		b := bodies[id]
		if compressed {
			b.compressed = true
		} else {
			b.plain = true
		}
		bodies[id] = b
	}
	return bodies, nil
}

// Verify checks that the index is an exact projection of the stored
// bodies. It does not modify anything.
func (r *Repository) Verify(ctx context.Context) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var report Report
	index, err := r.readIndex(ctx)
	if err != nil && !errors.Is(err, storage.ErrKeyNotFound) {
		return report, newError("verify", "", KindUnknown, err)
	}
	bodies, err := r.scanBodies(ctx)
	if err != nil {
		return report, newError("verify", "", KindUnknown, err)
	}

	report.Indexed = len(index)
	report.Stored = len(bodies)

	seen := make(map[string]int, len(index))
	for _, m := range index {
		seen[m.ID]++
		if seen[m.ID] == 2 {
			report.Duplicates = append(report.Duplicates, m.ID)
		}
		if _, ok := bodies[m.ID]; !ok && seen[m.ID] == 1 {
			report.Dangling = append(report.Dangling, m.ID)
		}
	}

	for _, id := range sortedIDs(bodies) {
		b := bodies[id]
		if seen[id] == 0 {
			report.Orphans = append(report.Orphans, id)
		}
		if b.plain && b.compressed {
			report.DoubleEncoded = append(report.DoubleEncoded, id)
		}
		if _, err := r.get(ctx, "verify", id); err != nil {
			report.Corrupt = append(report.Corrupt, id)
		}
	}
	return report, nil
}

// Repair rebuilds the index from the stored bodies and removes redundant
// compressed bodies shadowed by a plain one. Corrupt bodies are left in
// place and reported.
func (r *Repository) Repair(ctx context.Context) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	report, err := r.rebuildIndex(ctx)
	if err != nil {
		return report, newError("repair", "", KindUnknown, err)
	}
	r.logger.Info("calendar index rebuilt", "calendars", report.Indexed, "corrupt", len(report.Corrupt))
	return report, nil
}

// rebuildIndex replaces the index with the metas of every decodable body.
// Entries of the previous index keep their position; new ones are appended
// in createdAt order. Callers hold r.mu.
func (r *Repository) rebuildIndex(ctx context.Context) (Report, error) {
	var report Report

	previous, err := r.readIndex(ctx)
	if err != nil {
		previous = nil
	}
	bodies, err := r.scanBodies(ctx)
	if err != nil {
		return report, err
	}
	report.Stored = len(bodies)

	metas := make(map[string]calendar.Meta, len(bodies))
	var ops []storage.Op
	for _, id := range sortedIDs(bodies) {
		b := bodies[id]
		doc, err := r.get(ctx, "repair", id)
		if err != nil {
			report.Corrupt = append(report.Corrupt, id)
			continue
		}
		meta := doc.Meta
		meta.ID = id
		meta.IsCompressed = !b.plain
		metas[id] = meta
		if b.plain && b.compressed {
			report.DoubleEncoded = append(report.DoubleEncoded, id)
			ops = append(ops, storage.Remove(CompressedKey(id)))
		}
	}

	index := make([]calendar.Meta, 0, len(metas))
	placed := make(map[string]bool, len(metas))
	for _, m := range previous {
		meta, ok := metas[m.ID]
		if !ok {
			if !placed[m.ID] {
				report.Dangling = append(report.Dangling, m.ID)
			}
			continue
		}
		if placed[m.ID] {
			report.Duplicates = append(report.Duplicates, m.ID)
			continue
		}
		index = append(index, meta)
		placed[m.ID] = true
	}

	var added []calendar.Meta
	for id, meta := range metas {
		if !placed[id] {
			report.Orphans = append(report.Orphans, id)
			added = append(added, meta)
		}
	}
	sort.Slice(added, func(i, j int) bool {
		if added[i].CreatedAt.Equal(added[j].CreatedAt) {
			return added[i].ID < added[j].ID
		}
		return added[i].CreatedAt.Before(added[j].CreatedAt)
	})
	sort.Strings(report.Orphans)
	index = append(index, added...)
	report.Indexed = len(index)

	data, err := encodeIndex(index)
	if err != nil {
		return report, err
	}
	ops = append(ops, storage.Put(IndexKey, data))
	if err := r.engine.Apply(ctx, ops...); err != nil {
		return report, fmt.Errorf("failed to write rebuilt index: %w", err)
	}
	return report, nil
}

// Stats reports the calendar count and storage use.
func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	index := r.List(ctx)
	used, err := r.engine.Usage(ctx)
	if err != nil {
		return Stats{}, newError("stats", "", KindUnknown, err)
	}
	s := Stats{Calendars: len(index), UsedBytes: used, QuotaBytes: r.engine.Quota()}
	for _, m := range index {
		if m.IsCompressed {
			s.Compressed++
		}
	}
	return s, nil
}

func sortedIDs(bodies map[string]storedBody) []string {
	ids := make([]string, 0, len(bodies))
	for id := range bodies {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
