package utils

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// Cache payloads below this size are stored as-is; gzip overhead only pays
// off for larger entries.
const compressionFloor = 4096

const gzipPrefix = "gz:"

// EncodeCachePayload prepares a serialized blob for KV storage. Large
// payloads are gzip-compressed and base64-wrapped with a marker prefix so
// DecodeCachePayload can tell the two forms apart. Compression happens per
// entry, after partitioning, so the part-size threshold always applies to
// the uncompressed serialized bytes.
func EncodeCachePayload(data []byte) string {
	if len(data) < compressionFloor {
		return string(data)
	}

	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		w.Close()
		return string(data)
	}
	if err := w.Close(); err != nil {
		return string(data)
	}

	// Only worth keeping when it actually shrinks the entry.
	encoded := base64.StdEncoding.EncodeToString(buf.Bytes())
	if len(gzipPrefix)+len(encoded) >= len(data) {
		return string(data)
	}
	return gzipPrefix + encoded
}

// DecodeCachePayload reverses EncodeCachePayload.
func DecodeCachePayload(stored string) ([]byte, error) {
	if !strings.HasPrefix(stored, gzipPrefix) {
		return []byte(stored), nil
	}

	compressed, err := base64.StdEncoding.DecodeString(stored[len(gzipPrefix):])
	if err != nil {
		return nil, fmt.Errorf("failed to decode cache payload: %w", err)
	}

	r, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("failed to open gzip reader: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress cache payload: %w", err)
	}
	return data, nil
}
