package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JamesPrial/visual-calendar/internal/calendar"
	"github.com/JamesPrial/visual-calendar/internal/codec"
	"github.com/JamesPrial/visual-calendar/internal/migrate"
	"github.com/JamesPrial/visual-calendar/internal/storage"
)

// maxStringNesting bounds how many JSON string layers a stored body may be
// wrapped in.
const maxStringNesting = 2

// Get loads a calendar by id, migrated to the current schema.
//
// The body may be stored as a JSON object, as a JSON string wrapping the
// document text, or as a compressed blob. A missing body returns an error
// matching ErrNotFound; an undecodable one additionally matches ErrCorrupt
// and is logged with its key and leading bytes. A missing or unknown color
// theme reads as the default theme.
func (r *Repository) Get(ctx context.Context, id string) (calendar.Document, error) {
	if err := r.Init(ctx); err != nil {
		return calendar.Document{}, err
	}
	return r.get(ctx, "get", id)
}

func (r *Repository) get(ctx context.Context, op, id string) (calendar.Document, error) {
	if id == "" {
		return calendar.Document{}, newError(op, id, KindNotFound, errors.New("empty id"))
	}

	key, raw, err := r.loadBody(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return calendar.Document{}, newError(op, id, KindNotFound, nil)
		}
		r.logger.Error("failed to read calendar", "key", DocKey(id), "err", err)
		return calendar.Document{}, newError(op, id, KindUnknown, err)
	}

	doc, err := r.decodeBody(raw)
	if err != nil {
		r.logger.Warn("corrupt calendar record", "key", key, "raw", rawPrefix(raw), "err", err)
		return calendar.Document{}, newError(op, id, KindCorrupt, err)
	}
	return doc, nil
}

// loadBody returns the plain body, or the compressed one when no plain
// body exists.
func (r *Repository) loadBody(ctx context.Context, id string) (string, []byte, error) {
	raw, err := r.engine.Get(ctx, DocKey(id))
	if err == nil {
		return DocKey(id), raw, nil
	}
	if !errors.Is(err, storage.ErrKeyNotFound) {
		return DocKey(id), nil, err
	}
	raw, err = r.engine.Get(ctx, CompressedKey(id))
	return CompressedKey(id), raw, err
}

// decodeBody turns a stored body in any supported encoding into a
// migrated document.
func (r *Repository) decodeBody(raw []byte) (calendar.Document, error) {
	obj, err := r.unwrapBody(raw, 0)
	if err != nil {
		return calendar.Document{}, err
	}

	migrated, err := migrate.Migrate(obj)
	if errors.Is(err, migrate.ErrFutureVersion) {
		r.logger.Warn("calendar written by a newer version, reading anyway", "err", err)
	} else if err != nil {
		return calendar.Document{}, fmt.Errorf("%w: %v", codec.ErrCorrupt, err)
	}

	doc, err := codec.DecodeBytes(migrated)
	if err != nil {
		return calendar.Document{}, err
	}
	if !doc.FormData.ColorTheme.Valid() {
		if doc.FormData.ColorTheme != "" {
			r.logger.Warn("unknown stored theme, using default", "id", doc.Meta.ID, "theme", doc.FormData.ColorTheme)
		}
		doc.FormData.ColorTheme = calendar.ThemeDefault
	}
	return doc, nil
}

// unwrapBody strips JSON string layers and compression until a JSON object
// remains.
func (r *Repository) unwrapBody(raw []byte, depth int) ([]byte, error) {
	trimmed := bytes.TrimLeft(raw, " \t\r\n")
	switch {
	case len(trimmed) == 0:
		return nil, fmt.Errorf("%w: empty record", codec.ErrCorrupt)

	case trimmed[0] == '{':
		return trimmed, nil

	case trimmed[0] == '"':
		if depth >= maxStringNesting {
			return nil, fmt.Errorf("%w: record nested too deeply", codec.ErrCorrupt)
		}
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return nil, fmt.Errorf("%w: %v", codec.ErrCorrupt, err)
		}
		return r.unwrapBody([]byte(inner), depth+1)

	default:
		text, err := r.compressor.Decompress(string(trimmed))
		if err != nil {
			return nil, err
		}
		obj := bytes.TrimLeft([]byte(text), " \t\r\n")
		if len(obj) == 0 || obj[0] != '{' {
			return nil, fmt.Errorf("%w: decompressed record is not an object", codec.ErrCorrupt)
		}
		return obj, nil
	}
}
