package models

import (
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func intp(v int) *int { return &v }

func TestNormalizeChunksResolvesFieldSpellings(t *testing.T) {
	raw := []RawChunk{
		{ID: "a", Text: "snake page", Page: intp(3)},
		{ChunkID: "b", Content: "number page", PageNumber: intp(5), Order: intp(9)},
		{ID: "c", Text: "camel page", PageCamel: intp(7), ChunkIndex: intp(2)},
	}

	chunks := NormalizeChunks(raw)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}

	if chunks[0].Page != 3 || chunks[0].ChunkIndex != 0 {
		t.Fatalf("chunk 0 = %+v", chunks[0])
	}
	if chunks[1].ID != "b" || chunks[1].Text != "number page" || chunks[1].Page != 5 || chunks[1].ChunkIndex != 9 {
		t.Fatalf("chunk 1 = %+v", chunks[1])
	}
	if chunks[2].Page != 7 || chunks[2].ChunkIndex != 2 {
		t.Fatalf("chunk 2 = %+v", chunks[2])
	}
}

func TestNormalizeChunksDefaults(t *testing.T) {
	chunks := NormalizeChunks([]RawChunk{{ID: "x", Text: "no page info"}, {ID: "y", Text: "second"}})

	if chunks[0].Page != 1 {
		t.Fatalf("missing page should default to 1, got %d", chunks[0].Page)
	}
	if chunks[1].ChunkIndex != 1 {
		t.Fatalf("missing ordinal should fall back to position, got %d", chunks[1].ChunkIndex)
	}
}

func TestDecodeRawChunks(t *testing.T) {
	data := []byte(`[{"chunk_id":"c1","content":"hello","pageNumber":4}]`)

	chunks, err := DecodeRawChunks(data)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(chunks) != 1 || chunks[0].ID != "c1" || chunks[0].Text != "hello" || chunks[0].Page != 4 {
		t.Fatalf("chunks = %+v", chunks)
	}

	if _, err := DecodeRawChunks([]byte("{not json")); err == nil {
		t.Fatal("invalid JSON must error")
	}
}

func TestDocIDClassification(t *testing.T) {
	if !IsEphemeralDocID("temp-abc123") {
		t.Fatal("temp- prefix should classify as ephemeral")
	}
	if IsEphemeralDocID("abc123") {
		t.Fatal("plain id is not ephemeral")
	}

	oid := primitive.NewObjectID().Hex()
	if !IsPersistedDocID(oid) {
		t.Fatalf("ObjectID hex %q should classify as persisted", oid)
	}
	if IsPersistedDocID("temp-" + oid) {
		t.Fatal("ephemeral id must not classify as persisted")
	}
	if IsPersistedDocID("not-an-object-id") {
		t.Fatal("arbitrary string must not classify as persisted")
	}
}
