// Package codec converts calendar documents to and from their stored text
// forms.
//
// Plain JSON is the canonical representation. Compression is only used by
// the storage quota fallback and is provided by a Compressor strategy chosen
// once at startup.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/JamesPrial/visual-calendar/internal/calendar"
)

// ErrCorrupt reports text that cannot be decoded into a document.
var ErrCorrupt = errors.New("corrupt calendar data")

// Encode serializes a document to canonical JSON text.
func Encode(doc calendar.Document) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode calendar %s: %w", doc.Meta.ID, err)
	}
	return string(data), nil
}

// Decode parses canonical JSON text into a document.
func Decode(text string) (calendar.Document, error) {
	return DecodeBytes([]byte(text))
}

// DecodeBytes parses canonical JSON bytes into a document. Nil slices and
// maps are normalized to empty values so decoded documents re-encode the
// same way freshly created ones do.
func DecodeBytes(data []byte) (calendar.Document, error) {
	var doc calendar.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return calendar.Document{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	fd := &doc.FormData
	if fd.SelectedDays == nil {
		fd.SelectedDays = []calendar.Weekday{}
	}
	if fd.SelectedActivities == nil {
		fd.SelectedActivities = []calendar.Activity{}
	}
	if fd.CustomActivities == nil {
		fd.CustomActivities = []calendar.Activity{}
	}
	if fd.StickerQuantities == nil {
		fd.StickerQuantities = map[string]int{}
	}
	return doc, nil
}
