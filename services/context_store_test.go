package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"cre-chatbot-platform/models"
)

func testChunks(n, textLen int) []models.Chunk {
	chunks := make([]models.Chunk, n)
	for i := range chunks {
		chunks[i] = models.Chunk{
			ID:         fmt.Sprintf("chunk-%d", i),
			Text:       strings.Repeat("x", textLen),
			Page:       i/4 + 1,
			ChunkIndex: i,
		}
	}
	return chunks
}

func newLocalContextStore(t *testing.T, threshold int) (*ContextStore, *LocalStore) {
	t.Helper()
	local := NewLocalStore()
	store := NewContextStore(nil, local, ContextStoreOptions{
		TTL:           30 * time.Minute,
		PartThreshold: threshold,
	})
	return store, local
}

func TestSetGetContextRoundTrip(t *testing.T) {
	store, _ := newLocalContextStore(t, 900*1024)
	ctx := context.Background()

	doc := &models.DocumentContext{
		Chunks: testChunks(8, 100),
		Meta:   models.ContextMeta{PagesIndexed: 2},
	}
	if !store.SetContext(ctx, "temp-abc", "user-1", doc) {
		t.Fatal("SetContext returned false")
	}

	got, err := store.GetContext(ctx, "temp-abc", "user-1")
	if err != nil {
		t.Fatalf("GetContext error: %v", err)
	}
	if got == nil {
		t.Fatal("GetContext returned nil for stored context")
	}
	if len(got.Chunks) != 8 {
		t.Fatalf("got %d chunks, want 8", len(got.Chunks))
	}
	if got.Chunks[3].Text != doc.Chunks[3].Text || got.Chunks[3].Page != doc.Chunks[3].Page {
		t.Fatal("chunk content not preserved across round trip")
	}
	if got.Meta.PagesIndexed != 2 {
		t.Fatalf("PagesIndexed = %d, want 2", got.Meta.PagesIndexed)
	}
}

func TestGetContextOwnershipMismatch(t *testing.T) {
	store, _ := newLocalContextStore(t, 900*1024)
	ctx := context.Background()

	doc := &models.DocumentContext{Chunks: testChunks(4, 50)}
	if !store.SetContext(ctx, "temp-owned", "alice", doc) {
		t.Fatal("SetContext returned false")
	}

	got, err := store.GetContext(ctx, "temp-owned", "bob")
	if err != nil {
		t.Fatalf("ownership mismatch must not error, got: %v", err)
	}
	if got != nil {
		t.Fatal("ownership mismatch must read as missing")
	}
}

func TestGetContextMissing(t *testing.T) {
	store, _ := newLocalContextStore(t, 900*1024)

	got, err := store.GetContext(context.Background(), "temp-nope", "user-1")
	if err != nil || got != nil {
		t.Fatalf("missing context: got (%v, %v), want (nil, nil)", got, err)
	}
}

func TestSetContextPartitionsLargePayload(t *testing.T) {
	store, local := newLocalContextStore(t, 4096)
	ctx := context.Background()

	// 60 chunks of 500 chars serializes well past the 4KB threshold
	doc := &models.DocumentContext{
		Chunks: testChunks(60, 500),
		Meta:   models.ContextMeta{PagesIndexed: 15},
	}
	if !store.SetContext(ctx, "temp-big", "user-1", doc) {
		t.Fatal("SetContext returned false")
	}

	rec := store.GetStatus(ctx, "temp-big", "user-1")
	if rec.Status != models.StatusReady {
		t.Fatalf("status = %q, want ready", rec.Status)
	}
	if rec.Parts < 2 {
		t.Fatalf("parts = %d, want >= 2 for oversized payload", rec.Parts)
	}
	if rec.PagesIndexed != 15 {
		t.Fatalf("PagesIndexed = %d, want 15", rec.PagesIndexed)
	}

	if _, ok := local.Get(indexKey("temp-big")); !ok {
		t.Fatal("partition index entry not written")
	}
	for n := 0; n < rec.Parts; n++ {
		if _, ok := local.Get(partKey("temp-big", n)); !ok {
			t.Fatalf("part %d not written", n)
		}
	}

	got, err := store.GetContext(ctx, "temp-big", "user-1")
	if err != nil {
		t.Fatalf("GetContext error: %v", err)
	}
	if got == nil || len(got.Chunks) != 60 {
		t.Fatalf("reassembled %d chunks, want 60", len(got.Chunks))
	}
	for i, chunk := range got.Chunks {
		if chunk.ChunkIndex != i {
			t.Fatalf("chunk %d out of order: ChunkIndex = %d", i, chunk.ChunkIndex)
		}
	}
}

func TestSmallPayloadNotPartitioned(t *testing.T) {
	store, local := newLocalContextStore(t, 900*1024)
	ctx := context.Background()

	doc := &models.DocumentContext{Chunks: testChunks(3, 40)}
	if !store.SetContext(ctx, "temp-small", "user-1", doc) {
		t.Fatal("SetContext returned false")
	}

	if _, ok := local.Get(indexKey("temp-small")); ok {
		t.Fatal("small payload must not write a partition index")
	}
	if _, ok := local.Get(payloadKey("temp-small")); !ok {
		t.Fatal("single payload entry not written")
	}
	if rec := store.GetStatus(ctx, "temp-small", "user-1"); rec.Parts != 1 {
		t.Fatalf("parts = %d, want 1", rec.Parts)
	}
}

func TestGetContextPartialFailure(t *testing.T) {
	store, local := newLocalContextStore(t, 4096)
	ctx := context.Background()

	doc := &models.DocumentContext{Chunks: testChunks(60, 500)}
	if !store.SetContext(ctx, "temp-torn", "user-1", doc) {
		t.Fatal("SetContext returned false")
	}

	local.Delete(partKey("temp-torn", 1))

	got, err := store.GetContext(ctx, "temp-torn", "user-1")
	if got != nil {
		t.Fatal("partial context must never return chunks")
	}
	if !errors.Is(err, ErrPartialContext) {
		t.Fatalf("err = %v, want ErrPartialContext", err)
	}
}

func TestStatusLifecycle(t *testing.T) {
	store, _ := newLocalContextStore(t, 900*1024)
	ctx := context.Background()

	if rec := store.GetStatus(ctx, "temp-doc", ""); rec.Status != models.StatusMissing {
		t.Fatalf("initial status = %q, want missing", rec.Status)
	}

	if !store.SetStatus(ctx, "temp-doc", models.StatusProcessing, "") {
		t.Fatal("SetStatus returned false")
	}
	if rec := store.GetStatus(ctx, "temp-doc", ""); rec.Status != models.StatusProcessing {
		t.Fatalf("status = %q, want processing", rec.Status)
	}

	if !store.SetStatus(ctx, "temp-doc", models.StatusError, "extraction failed") {
		t.Fatal("SetStatus returned false")
	}
	rec := store.GetStatus(ctx, "temp-doc", "")
	if rec.Status != models.StatusError || rec.Error != "extraction failed" {
		t.Fatalf("got %+v, want error status with message", rec)
	}
}

func TestGetStatusOwnershipMismatch(t *testing.T) {
	store, _ := newLocalContextStore(t, 4096)
	ctx := context.Background()

	doc := &models.DocumentContext{Chunks: testChunks(60, 500)}
	if !store.SetContext(ctx, "temp-big", "alice", doc) {
		t.Fatal("SetContext returned false")
	}

	if rec := store.GetStatus(ctx, "temp-big", "bob"); rec.Status != models.StatusMissing {
		t.Fatalf("non-owner status = %q, want missing", rec.Status)
	}
	if rec := store.GetStatus(ctx, "temp-big", "alice"); rec.Status != models.StatusReady {
		t.Fatalf("owner status = %q, want ready", rec.Status)
	}
}

func TestUnavailableStoreShortCircuits(t *testing.T) {
	store := NewContextStore(nil, nil, ContextStoreOptions{})
	ctx := context.Background()

	if store.Available() {
		t.Fatal("store with no backend must report unavailable")
	}
	if store.SetStatus(ctx, "temp-x", models.StatusProcessing, "") {
		t.Fatal("SetStatus must return false when unavailable")
	}
	if store.SetContext(ctx, "temp-x", "u", &models.DocumentContext{Chunks: testChunks(1, 10)}) {
		t.Fatal("SetContext must return false when unavailable")
	}
	if got, err := store.GetContext(ctx, "temp-x", "u"); got != nil || err != nil {
		t.Fatalf("GetContext = (%v, %v), want (nil, nil)", got, err)
	}
	if rec := store.GetStatus(ctx, "temp-x", "u"); rec.Status != models.StatusMissing {
		t.Fatalf("status = %q, want missing", rec.Status)
	}
}

func TestDeleteContextRemovesAllEntries(t *testing.T) {
	store, local := newLocalContextStore(t, 4096)
	ctx := context.Background()

	doc := &models.DocumentContext{Chunks: testChunks(60, 500)}
	if !store.SetContext(ctx, "temp-del", "user-1", doc) {
		t.Fatal("SetContext returned false")
	}

	store.DeleteContext(ctx, "temp-del")

	if local.Len() != 0 {
		t.Fatalf("%d entries remain after delete", local.Len())
	}
	if rec := store.GetStatus(ctx, "temp-del", ""); rec.Status != models.StatusMissing {
		t.Fatalf("status after delete = %q, want missing", rec.Status)
	}
}

func TestLocalStoreExpiry(t *testing.T) {
	local := NewLocalStore()
	current := time.Now()
	local.now = func() time.Time { return current }

	local.Set("k", "v", 10*time.Minute)
	if _, ok := local.Get("k"); !ok {
		t.Fatal("entry should exist before TTL")
	}

	current = current.Add(11 * time.Minute)
	if _, ok := local.Get("k"); ok {
		t.Fatal("entry should expire after TTL")
	}
}

func TestLocalStorePurge(t *testing.T) {
	local := NewLocalStore()
	current := time.Now()
	local.now = func() time.Time { return current }

	local.Set("live", "v", time.Hour)
	local.Set("dead1", "v", time.Minute)
	local.Set("dead2", "v", time.Minute)

	current = current.Add(2 * time.Minute)
	if dropped := local.Purge(); dropped != 2 {
		t.Fatalf("purged %d, want 2", dropped)
	}
	if local.Len() != 1 {
		t.Fatalf("%d entries remain, want 1", local.Len())
	}
}

func TestLargeDocumentPartitionRoundTrip(t *testing.T) {
	// A realistic worst case: 1200 chunks of roughly 3KB each, well past
	// the default 900KB threshold.
	store, local := newLocalContextStore(t, 900*1024)
	chunks := testChunks(1200, 3000)
	doc := &models.DocumentContext{
		Chunks: chunks,
		Meta:   models.ContextMeta{PagesIndexed: 300},
	}

	if !store.SetContext(context.Background(), "doc-big", "user-1", doc) {
		t.Fatal("SetContext failed")
	}

	rec := store.GetStatus(context.Background(), "doc-big", "user-1")
	if rec.Status != models.StatusReady {
		t.Fatalf("status = %q, want ready", rec.Status)
	}
	if rec.Parts < 4 {
		t.Fatalf("parts = %d, want at least 4 for a ~3.5MB payload", rec.Parts)
	}
	if got := local.Len(); got != rec.Parts+2 {
		t.Fatalf("stored %d entries, want %d (index + status + parts)", got, rec.Parts+2)
	}

	loaded, err := store.GetContext(context.Background(), "doc-big", "user-1")
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if loaded == nil || len(loaded.Chunks) != len(chunks) {
		t.Fatalf("reassembled %d chunks, want %d", len(loaded.Chunks), len(chunks))
	}
	for i := range chunks {
		if loaded.Chunks[i].ID != chunks[i].ID || loaded.Chunks[i].ChunkIndex != chunks[i].ChunkIndex {
			t.Fatalf("chunk %d out of order: got %s/%d", i, loaded.Chunks[i].ID, loaded.Chunks[i].ChunkIndex)
		}
	}
	if loaded.Meta.PagesIndexed != 300 {
		t.Fatalf("PagesIndexed = %d, want 300", loaded.Meta.PagesIndexed)
	}
}

func TestDeleteContextOwnedMismatch(t *testing.T) {
	store, local := newLocalContextStore(t, 900*1024)
	ctx := context.Background()

	doc := &models.DocumentContext{Chunks: testChunks(4, 50)}
	if !store.SetContext(ctx, "temp-owned", "user-1", doc) {
		t.Fatal("SetContext failed")
	}

	if store.DeleteContextOwned(ctx, "temp-owned", "user-2") {
		t.Fatal("non-owner delete reported success")
	}
	if local.Len() == 0 {
		t.Fatal("non-owner delete removed entries")
	}

	if !store.DeleteContextOwned(ctx, "temp-owned", "user-1") {
		t.Fatal("owner delete reported failure")
	}
	if local.Len() != 0 {
		t.Fatalf("%d entries remain after owner delete", local.Len())
	}
}

func TestDeleteContextOwnedMissing(t *testing.T) {
	store, _ := newLocalContextStore(t, 900*1024)
	if store.DeleteContextOwned(context.Background(), "temp-nope", "user-1") {
		t.Fatal("delete of absent context reported success")
	}
}
