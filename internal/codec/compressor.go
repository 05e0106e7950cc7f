package codec

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
)

// Compressor turns document text into a compact URL-safe string and back.
//
// Implementations must round-trip any valid UTF-8 text exactly.
type Compressor interface {
	// Name identifies the strategy in logs.
	Name() string

	// Compress encodes text into URL-safe base64.
	Compress(text string) (string, error)

	// Decompress reverses Compress. Input that is already plain JSON
	// (starting with '{' or '[') is returned unchanged.
	Decompress(blob string) (string, error)
}

// checkSample exercises multi-byte and astral-plane characters.
const checkSample = `{"name":"Lucía ☀ 日曜日 🦖"}`

// NewCompressor returns the gzip strategy when a round-trip check succeeds
// and the base64-only strategy otherwise.
func NewCompressor() Compressor {
	return selectCompressor(GzipCompressor{}, Base64Compressor{})
}

func selectCompressor(preferred, fallback Compressor) Compressor {
	blob, err := preferred.Compress(checkSample)
	if err != nil {
		return fallback
	}
	out, err := preferred.Decompress(blob)
	if err != nil || out != checkSample {
		return fallback
	}
	return preferred
}

// GzipCompressor gzips the UTF-8 bytes and frames them as unpadded
// URL-safe base64.
type GzipCompressor struct{}

func (GzipCompressor) Name() string { return "gzip" }

func (GzipCompressor) Compress(text string) (string, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return "", fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if _, err := io.WriteString(zw, text); err != nil {
		_ = zw.Close()
		return "", fmt.Errorf("failed to compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("failed to flush gzip stream: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// Decompress accepts plain JSON, gzip blobs and legacy base64-only blobs.
func (GzipCompressor) Decompress(blob string) (string, error) {
	if isPlainJSON(blob) {
		return blob, nil
	}
	raw, err := decodeBase64(blob)
	if err != nil {
		return "", err
	}
	if inflated, err := inflate(raw); err == nil {
		return checkUTF8(inflated)
	}
	return checkUTF8(raw)
}

// Base64Compressor stores the UTF-8 bytes as unpadded URL-safe base64
// without compression. It is the fallback when gzip is unusable.
type Base64Compressor struct{}

func (Base64Compressor) Name() string { return "base64" }

func (Base64Compressor) Compress(text string) (string, error) {
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("%w: input is not valid UTF-8", ErrCorrupt)
	}
	return base64.RawURLEncoding.EncodeToString([]byte(text)), nil
}

// Decompress still tries gzip inflation first so blobs written by the gzip
// strategy stay readable.
func (Base64Compressor) Decompress(blob string) (string, error) {
	return GzipCompressor{}.Decompress(blob)
}

func isPlainJSON(s string) bool {
	s = strings.TrimLeft(s, " \t\r\n")
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

// decodeBase64 accepts URL-safe or standard alphabets, padded or not.
func decodeBase64(blob string) ([]byte, error) {
	s := strings.TrimSpace(blob)
	s = strings.TrimRight(s, "=")
	s = strings.NewReplacer("+", "-", "/", "_").Replace(s)
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrCorrupt, err)
	}
	return raw, nil
}

func inflate(raw []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer func() { _ = zr.Close() }()
	return io.ReadAll(zr)
}

func checkUTF8(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", fmt.Errorf("%w: decoded text is not valid UTF-8", ErrCorrupt)
	}
	return string(b), nil
}
