// Package migrate upgrades stored calendar documents to the current schema.
//
// Migrations operate on the raw JSON bytes rather than on decoded structs:
// fields a step does not touch keep their exact bytes and order, and fields
// this version of the model does not know about survive an upgrade.
//
// The schema version lives in meta.schemaVersion. Documents written before
// the field existed read as version 0. Every step is guarded by a presence
// check so that a document whose fields are newer than its version number
// is never overwritten.
package migrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/buger/jsonparser"

	"github.com/JamesPrial/visual-calendar/internal/calendar"
)

// Current is the schema version written by this build.
const Current = 2

var (
	// ErrFutureVersion reports a document written by a newer build.
	ErrFutureVersion = errors.New("calendar schema version is newer than supported")

	// ErrNotObject reports input whose top level is not a JSON object.
	ErrNotObject = errors.New("calendar document is not a JSON object")

	// ErrMalformed reports input that is not valid JSON.
	ErrMalformed = errors.New("calendar document is not valid JSON")
)

// step upgrades a document from version N to N+1.
type step func(doc []byte) ([]byte, error)

// steps maps a source version to the step that upgrades it.
var steps = map[int]step{
	0: addDayMoments,
	1: addShowDayMoments,
}

// Version returns the schema version recorded in the document.
func Version(doc []byte) (int, error) {
	if !isObject(doc) {
		return 0, ErrNotObject
	}
	v, err := jsonparser.GetInt(doc, "meta", "schemaVersion")
	if errors.Is(err, jsonparser.KeyPathNotFoundError) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return int(v), nil
}

// Migrate returns doc upgraded to Current. The input slice is never
// modified. Migrate is idempotent: migrating an already current document
// returns identical bytes.
//
// A document from a newer build is returned unchanged together with
// ErrFutureVersion so callers can decide whether to read it anyway.
func Migrate(doc []byte) ([]byte, error) {
	if !json.Valid(doc) {
		return nil, ErrMalformed
	}
	from, err := Version(doc)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(doc))
	copy(out, doc)

	if from > Current {
		return out, fmt.Errorf("%w: %d > %d", ErrFutureVersion, from, Current)
	}
	if from == Current {
		return out, nil
	}

	for v := from; v < Current; v++ {
		apply, ok := steps[v]
		if !ok {
			return nil, fmt.Errorf("no migration registered from schema version %d", v)
		}
		if out, err = apply(out); err != nil {
			return nil, fmt.Errorf("migration %d -> %d failed: %w", v, v+1, err)
		}
	}

	out, err = jsonparser.Set(out, []byte(strconv.Itoa(Current)), "meta", "schemaVersion")
	if err != nil {
		return nil, fmt.Errorf("failed to stamp schema version: %w", err)
	}
	return out, nil
}

// addDayMoments fills formData.dayMoments with the single-moment sentinel.
func addDayMoments(doc []byte) ([]byte, error) {
	if present(doc, "formData", "dayMoments") {
		return doc, nil
	}
	sentinel, err := json.Marshal(calendar.SingleMoment())
	if err != nil {
		return nil, err
	}
	return jsonparser.Set(doc, sentinel, "formData", "dayMoments")
}

// addShowDayMoments fills formData.options.showDayMoments with false.
func addShowDayMoments(doc []byte) ([]byte, error) {
	if present(doc, "formData", "options", "showDayMoments") {
		return doc, nil
	}
	return jsonparser.Set(doc, []byte("false"), "formData", "options", "showDayMoments")
}

// present reports whether the path exists with a non-null value.
func present(doc []byte, keys ...string) bool {
	_, typ, _, err := jsonparser.Get(doc, keys...)
	return err == nil && typ != jsonparser.Null && typ != jsonparser.NotExist
}

func isObject(doc []byte) bool {
	for _, b := range doc {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}
