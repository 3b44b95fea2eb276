package models

import (
	"encoding/json"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Chunk is the canonical unit of extracted document text. Every component
// past the ingestion boundary sees only this shape.
type Chunk struct {
	ID         string            `json:"id" bson:"chunk_id"`
	Text       string            `json:"text" bson:"text"`
	Page       int               `json:"page" bson:"page"`
	ChunkIndex int               `json:"chunk_index" bson:"chunk_index"`
	Metadata   map[string]string `json:"metadata,omitempty" bson:"metadata,omitempty"`
}

// ContextMeta carries processing metadata alongside a cached chunk set.
type ContextMeta struct {
	PagesIndexed     int           `json:"pages_indexed"`
	ProcessingTime   time.Duration `json:"processing_time"`
	ContentHash      string        `json:"content_hash"`
	OriginalFilename string        `json:"original_filename"`
}

// DocumentContext is the full parsed-chunk payload for one document version.
// Write-once: a new upload creates a new context, never patches an old one.
type DocumentContext struct {
	Chunks []Chunk     `json:"chunks"`
	UserID string      `json:"user_id"`
	Meta   ContextMeta `json:"meta"`
}

// ContextIndex is the partition directory written when a serialized
// DocumentContext exceeds the per-entry size threshold.
type ContextIndex struct {
	Parts  int         `json:"parts"`
	UserID string      `json:"user_id"`
	Meta   ContextMeta `json:"meta"`
}

// Document processing status values.
const (
	StatusProcessing = "processing"
	StatusReady      = "ready"
	StatusError      = "error"
	StatusMissing    = "missing"
)

// StatusRecord tracks the processing lifecycle of a document, independent
// of whether the payload blob itself has been written yet.
type StatusRecord struct {
	Status       string `json:"status"`
	Error        string `json:"error,omitempty"`
	Parts        int    `json:"parts,omitempty"`
	PagesIndexed int    `json:"pages_indexed,omitempty"`
}

// RetrievedChunk is one ranked retrieval result handed to prompt assembly.
type RetrievedChunk struct {
	Content    string `json:"content"`
	PageNumber int    `json:"page_number"`
	ChunkType  string `json:"chunk_type"`
}

// EphemeralIDPrefix marks documents that live only in the context store
// until their TTL expires.
const EphemeralIDPrefix = "temp-"

// IsEphemeralDocID reports whether id names an ephemeral (cache-only)
// document rather than one persisted in MongoDB.
func IsEphemeralDocID(id string) bool {
	return strings.HasPrefix(id, EphemeralIDPrefix)
}

// IsPersistedDocID reports whether id names a document stored durably.
func IsPersistedDocID(id string) bool {
	if IsEphemeralDocID(id) {
		return false
	}
	_, err := primitive.ObjectIDFromHex(id)
	return err == nil
}

// RawChunk is the loosely-shaped chunk emitted by the PDF-parsing
// collaborator. Upstream tools disagree on field names (page vs page_number
// vs pageNumber); NormalizeChunks resolves them once at ingestion.
type RawChunk struct {
	ID         string            `json:"id"`
	ChunkID    string            `json:"chunk_id"`
	Text       string            `json:"text"`
	Content    string            `json:"content"`
	Page       *int              `json:"page"`
	PageNumber *int              `json:"page_number"`
	PageCamel  *int              `json:"pageNumber"`
	ChunkIndex *int              `json:"chunk_index"`
	Order      *int              `json:"order"`
	Metadata   map[string]string `json:"metadata"`
}

// NormalizeChunks converts parser output into canonical Chunks. Missing
// ordinals fall back to slice position; missing pages default to 1.
func NormalizeChunks(raw []RawChunk) []Chunk {
	chunks := make([]Chunk, 0, len(raw))
	for i, rc := range raw {
		c := Chunk{
			ID:         rc.ID,
			Text:       rc.Text,
			Page:       1,
			ChunkIndex: i,
			Metadata:   rc.Metadata,
		}
		if c.ID == "" {
			c.ID = rc.ChunkID
		}
		if c.Text == "" {
			c.Text = rc.Content
		}
		switch {
		case rc.Page != nil:
			c.Page = *rc.Page
		case rc.PageNumber != nil:
			c.Page = *rc.PageNumber
		case rc.PageCamel != nil:
			c.Page = *rc.PageCamel
		}
		switch {
		case rc.ChunkIndex != nil:
			c.ChunkIndex = *rc.ChunkIndex
		case rc.Order != nil:
			c.ChunkIndex = *rc.Order
		}
		chunks = append(chunks, c)
	}
	return chunks
}

// DecodeRawChunks parses a JSON chunk list in any of the supported field
// spellings and returns canonical chunks.
func DecodeRawChunks(data []byte) ([]Chunk, error) {
	var raw []RawChunk
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return NormalizeChunks(raw), nil
}
