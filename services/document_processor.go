package services

import (
	"context"
	"fmt"
	"time"

	"cre-chatbot-platform/internal/logger"
	"cre-chatbot-platform/internal/telemetry"
	"cre-chatbot-platform/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// DocumentProcessor runs the extract-and-index pipeline for uploads. The
// synchronous upload path and the background worker share it.
type DocumentProcessor struct {
	db        *mongo.Database
	extractor *PDFExtractor
	store     *ContextStore
	metrics   *telemetry.Metrics
}

func NewDocumentProcessor(db *mongo.Database, extractor *PDFExtractor, store *ContextStore, metrics *telemetry.Metrics) *DocumentProcessor {
	return &DocumentProcessor{
		db:        db,
		extractor: extractor,
		store:     store,
		metrics:   metrics,
	}
}

// ProcessDocument extracts a persisted document into durable chunk rows and
// warms the context cache. The document record and cache status move through
// processing -> ready, or -> error with a message.
func (p *DocumentProcessor) ProcessDocument(ctx context.Context, docID, userID string, content []byte) (int, int, error) {
	start := time.Now()
	p.store.SetStatus(ctx, docID, models.StatusProcessing, "")
	p.updateDocumentStatus(ctx, docID, models.StatusProcessing, "")

	chunks, pages, err := p.extractor.ExtractChunks(ctx, content)
	if err != nil {
		p.store.SetStatus(ctx, docID, models.StatusError, err.Error())
		p.updateDocumentStatus(ctx, docID, models.StatusError, err.Error())
		if p.metrics != nil {
			p.metrics.RecordPDFProcessing(time.Since(start).Seconds(), "error")
		}
		return 0, 0, err
	}

	if err := p.indexChunks(ctx, docID, userID, chunks); err != nil {
		p.store.SetStatus(ctx, docID, models.StatusError, "failed to index chunks")
		p.updateDocumentStatus(ctx, docID, models.StatusError, err.Error())
		if p.metrics != nil {
			p.metrics.RecordPDFProcessing(time.Since(start).Seconds(), "error")
		}
		return 0, 0, err
	}

	now := time.Now()
	p.updateDocument(ctx, docID, bson.M{
		"status":       models.StatusReady,
		"chunk_count":  len(chunks),
		"pages":        pages,
		"processed_at": now,
	})

	// Warm the cache. Durable rows already exist, so a failed cache write
	// still leaves the document usable; record ready status directly then.
	doc := &models.DocumentContext{
		Chunks: chunks,
		UserID: userID,
		Meta: models.ContextMeta{
			PagesIndexed:   pages,
			ProcessingTime: time.Since(start),
		},
	}
	if !p.store.SetContext(ctx, docID, userID, doc) {
		p.store.SetStatus(ctx, docID, models.StatusReady, "")
	}

	if p.metrics != nil {
		p.metrics.RecordPDFProcessing(time.Since(start).Seconds(), "ready")
	}
	logger.Info("document processed", "doc_id", docID, "chunks", len(chunks), "pages", pages)
	return len(chunks), pages, nil
}

// ProcessEphemeral extracts an ephemeral document straight into the context
// cache. Nothing is written to Mongo.
func (p *DocumentProcessor) ProcessEphemeral(ctx context.Context, docID, userID string, content []byte) (int, int, error) {
	if !models.IsEphemeralDocID(docID) {
		return 0, 0, fmt.Errorf("not an ephemeral document id: %s", docID)
	}

	start := time.Now()
	p.store.SetStatus(ctx, docID, models.StatusProcessing, "")
	chunks, pages, err := p.extractor.ExtractChunks(ctx, content)
	if err != nil {
		p.store.SetStatus(ctx, docID, models.StatusError, err.Error())
		return 0, 0, err
	}

	doc := &models.DocumentContext{
		Chunks: chunks,
		UserID: userID,
		Meta: models.ContextMeta{
			PagesIndexed:   pages,
			ProcessingTime: time.Since(start),
		},
	}
	if !p.store.SetContext(ctx, docID, userID, doc) {
		p.store.SetStatus(ctx, docID, models.StatusError, "context store write failed")
		return 0, 0, fmt.Errorf("failed to cache ephemeral document %s", docID)
	}
	return len(chunks), pages, nil
}

// indexChunks replaces the durable chunk rows for a document. Reprocessing
// the same document is idempotent.
func (p *DocumentProcessor) indexChunks(ctx context.Context, docID, userID string, chunks []models.Chunk) error {
	oid, err := primitive.ObjectIDFromHex(docID)
	if err != nil {
		return fmt.Errorf("invalid document id %q: %w", docID, err)
	}

	col := p.db.Collection("doc_chunks")
	if _, err := col.DeleteMany(ctx, bson.M{"document_id": oid}); err != nil {
		return err
	}

	rows := make([]interface{}, len(chunks))
	for i, chunk := range chunks {
		rows[i] = models.DocChunkIndex{
			DocumentID: oid,
			UserID:     userID,
			ChunkID:    chunk.ID,
			ChunkIndex: chunk.ChunkIndex,
			Page:       chunk.Page,
			Text:       chunk.Text,
		}
	}
	_, err = col.InsertMany(ctx, rows)
	if p.metrics != nil {
		p.metrics.RecordDatabaseOperation("insert_many", "doc_chunks", err == nil)
	}
	return err
}

func (p *DocumentProcessor) updateDocumentStatus(ctx context.Context, docID, status, errMsg string) {
	update := bson.M{"status": status}
	if errMsg != "" {
		update["error_message"] = errMsg
	}
	p.updateDocument(ctx, docID, update)
}

func (p *DocumentProcessor) updateDocument(ctx context.Context, docID string, fields bson.M) {
	oid, err := primitive.ObjectIDFromHex(docID)
	if err != nil {
		return
	}
	if _, err := p.db.Collection("documents").UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": fields}); err != nil {
		logger.Error("failed to update document record", "doc_id", docID, "error", err)
	}
}
