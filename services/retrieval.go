package services

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"cre-chatbot-platform/internal/logger"
	"cre-chatbot-platform/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Chunk provenance labels returned to prompt assembly.
const (
	ChunkTypeContextCache = "context_cache"
	ChunkTypeTextSearch   = "text_search"
	ChunkTypeSubstring    = "substring_scan"
	ChunkTypeSequential   = "sequential"
)

// ChunkSearcher is the durable-store query capability consumed by the
// retrieval engine for persisted documents.
type ChunkSearcher interface {
	// SearchChunks runs ranked full-text search scoped to one document.
	SearchChunks(ctx context.Context, docID, userID, query string, limit int) ([]models.DocChunkIndex, error)
	// ScanChunks runs a case-insensitive substring scan scoped to one document.
	ScanChunks(ctx context.Context, docID, userID, substr string, limit int) ([]models.DocChunkIndex, error)
	// FirstChunks returns the first chunks in original ordinal order.
	FirstChunks(ctx context.Context, docID, userID string, limit int) ([]models.DocChunkIndex, error)
}

// MongoChunkSearcher implements ChunkSearcher against the doc_chunks
// collection, using Atlas $search when an index is configured.
type MongoChunkSearcher struct {
	chunks      *mongo.Collection
	searchIndex string
}

func NewMongoChunkSearcher(chunks *mongo.Collection, searchIndex string) *MongoChunkSearcher {
	return &MongoChunkSearcher{chunks: chunks, searchIndex: searchIndex}
}

func (m *MongoChunkSearcher) SearchChunks(ctx context.Context, docID, userID, query string, limit int) ([]models.DocChunkIndex, error) {
	objID, err := primitive.ObjectIDFromHex(docID)
	if err != nil {
		return nil, err
	}
	if m.searchIndex == "" {
		return nil, errors.New("text search index not configured")
	}

	pipeline := mongo.Pipeline{
		{{Key: "$search", Value: bson.D{
			{Key: "index", Value: m.searchIndex},
			{Key: "compound", Value: bson.D{
				{Key: "must", Value: bson.A{
					bson.D{{Key: "text", Value: bson.D{
						{Key: "query", Value: query},
						{Key: "path", Value: "text"},
					}}},
				}},
				{Key: "filter", Value: bson.A{
					bson.D{{Key: "equals", Value: bson.D{
						{Key: "path", Value: "document_id"},
						{Key: "value", Value: objID},
					}}},
				}},
			}},
		}}},
		{{Key: "$match", Value: bson.D{{Key: "user_id", Value: userID}}}},
		{{Key: "$limit", Value: limit}},
	}

	cursor, err := m.chunks.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []models.DocChunkIndex
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (m *MongoChunkSearcher) ScanChunks(ctx context.Context, docID, userID, substr string, limit int) ([]models.DocChunkIndex, error) {
	objID, err := primitive.ObjectIDFromHex(docID)
	if err != nil {
		return nil, err
	}

	filter := bson.M{
		"document_id": objID,
		"user_id":     userID,
	}
	if substr != "" {
		filter["text"] = bson.M{"$regex": regexp.QuoteMeta(substr), "$options": "i"}
	}

	cursor, err := m.chunks.Find(ctx, filter,
		options.Find().SetSort(bson.M{"chunk_index": 1}).SetLimit(int64(limit)))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []models.DocChunkIndex
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (m *MongoChunkSearcher) FirstChunks(ctx context.Context, docID, userID string, limit int) ([]models.DocChunkIndex, error) {
	return m.ScanChunks(ctx, docID, userID, "", limit)
}

// RetrievalEngine returns the best-available relevant chunks for a document
// and query, degrading through an ordered strategy chain rather than
// failing. Ephemeral documents come from the context store; persisted
// documents from the durable chunk searcher.
type RetrievalEngine struct {
	store            *ContextStore
	searcher         ChunkSearcher
	maxCharsPerChunk int
}

func NewRetrievalEngine(store *ContextStore, searcher ChunkSearcher, maxCharsPerChunk int) *RetrievalEngine {
	if maxCharsPerChunk <= 0 {
		maxCharsPerChunk = 1500
	}
	return &RetrievalEngine{store: store, searcher: searcher, maxCharsPerChunk: maxCharsPerChunk}
}

type retrievalQuery struct {
	docID    string
	userID   string
	query    string
	k        int
	maxChars int
}

// A strategy returns its results or an error; errors never block the next
// strategy in the chain.
type retrievalStrategy struct {
	name string
	run  func(ctx context.Context, q retrievalQuery) ([]models.RetrievedChunk, error)
}

// RetrieveTopK returns up to k chunks relevant to query, each truncated to
// maxChars. The only possible error is a partially-readable ephemeral
// context; every other failure degrades to the next strategy, and strategy
// exhaustion yields an empty, non-error result.
func (e *RetrievalEngine) RetrieveTopK(ctx context.Context, docID, query string, k, maxChars int, userID string) ([]models.RetrievedChunk, error) {
	if k <= 0 {
		return nil, nil
	}
	if maxChars <= 0 {
		maxChars = e.maxCharsPerChunk
	}
	q := retrievalQuery{docID: docID, userID: userID, query: query, k: k, maxChars: maxChars}

	if models.IsEphemeralDocID(docID) {
		return e.retrieveEphemeral(ctx, q)
	}

	strategies := []retrievalStrategy{
		{name: "text_search", run: e.searchStrategy},
		{name: "substring_scan", run: e.scanStrategy},
		{name: "sequential", run: e.sequentialStrategy},
	}

	for _, s := range strategies {
		results, err := s.run(ctx, q)
		if err != nil {
			logger.Warn("retrieval strategy failed", "strategy", s.name, "document_id", docID, "error", err)
			continue
		}
		if len(results) > 0 {
			return results, nil
		}
	}
	return nil, nil
}

// retrieveEphemeral loads the cached context and filters chunks containing
// the query substring; when nothing matches it falls back to the first k
// chunks unfiltered, so a single-use context always contributes something.
func (e *RetrievalEngine) retrieveEphemeral(ctx context.Context, q retrievalQuery) ([]models.RetrievedChunk, error) {
	doc, err := e.store.GetContext(ctx, q.docID, q.userID)
	if err != nil {
		return nil, err
	}
	if doc == nil || len(doc.Chunks) == 0 {
		return nil, nil
	}

	matched := filterChunksBySubstring(doc.Chunks, q.query)
	if len(matched) == 0 {
		matched = doc.Chunks
	}
	if len(matched) > q.k {
		matched = matched[:q.k]
	}

	results := make([]models.RetrievedChunk, 0, len(matched))
	for _, c := range matched {
		results = append(results, models.RetrievedChunk{
			Content:    truncateText(c.Text, q.maxChars),
			PageNumber: c.Page,
			ChunkType:  ChunkTypeContextCache,
		})
	}
	return results, nil
}

func (e *RetrievalEngine) searchStrategy(ctx context.Context, q retrievalQuery) ([]models.RetrievedChunk, error) {
	rows, err := e.searcher.SearchChunks(ctx, q.docID, q.userID, q.query, q.k)
	if err != nil {
		return nil, err
	}
	return rowsToChunks(rows, q.maxChars, ChunkTypeTextSearch), nil
}

func (e *RetrievalEngine) scanStrategy(ctx context.Context, q retrievalQuery) ([]models.RetrievedChunk, error) {
	rows, err := e.searcher.ScanChunks(ctx, q.docID, q.userID, q.query, q.k)
	if err != nil {
		return nil, err
	}
	return rowsToChunks(rows, q.maxChars, ChunkTypeSubstring), nil
}

func (e *RetrievalEngine) sequentialStrategy(ctx context.Context, q retrievalQuery) ([]models.RetrievedChunk, error) {
	rows, err := e.searcher.FirstChunks(ctx, q.docID, q.userID, q.k)
	if err != nil {
		return nil, err
	}
	return rowsToChunks(rows, q.maxChars, ChunkTypeSequential), nil
}

// ChunksForDocIDs aggregates chunks across documents, ephemeral ones first,
// stopping once maxChunks is reached. Unsupported id forms are skipped with
// a log entry rather than failing the aggregation.
func (e *RetrievalEngine) ChunksForDocIDs(ctx context.Context, docIDs []string, query string, maxChunks int, userID string) []models.RetrievedChunk {
	ordered := make([]string, 0, len(docIDs))
	for _, id := range docIDs {
		if models.IsEphemeralDocID(id) {
			ordered = append(ordered, id)
		}
	}
	for _, id := range docIDs {
		if !models.IsEphemeralDocID(id) {
			ordered = append(ordered, id)
		}
	}

	var all []models.RetrievedChunk
	for _, id := range ordered {
		if len(all) >= maxChunks {
			break
		}
		if !models.IsEphemeralDocID(id) && !models.IsPersistedDocID(id) {
			logger.Warn("skipping unsupported document id", "document_id", id)
			continue
		}
		chunks, err := e.RetrieveTopK(ctx, id, query, maxChunks-len(all), 0, userID)
		if err != nil {
			logger.Warn("document retrieval failed during aggregation", "document_id", id, "error", err)
			continue
		}
		all = append(all, chunks...)
	}
	if len(all) > maxChunks {
		all = all[:maxChunks]
	}
	return all
}

func filterChunksBySubstring(chunks []models.Chunk, query string) []models.Chunk {
	if query == "" {
		return chunks
	}
	needle := strings.ToLower(query)
	var matched []models.Chunk
	for _, c := range chunks {
		if strings.Contains(strings.ToLower(c.Text), needle) {
			matched = append(matched, c)
		}
	}
	return matched
}

func rowsToChunks(rows []models.DocChunkIndex, maxChars int, chunkType string) []models.RetrievedChunk {
	results := make([]models.RetrievedChunk, 0, len(rows))
	for _, r := range rows {
		results = append(results, models.RetrievedChunk{
			Content:    truncateText(r.Text, maxChars),
			PageNumber: r.Page,
			ChunkType:  chunkType,
		})
	}
	return results
}

// truncateText cuts text to at most maxChars bytes without splitting a
// multi-byte rune.
func truncateText(text string, maxChars int) string {
	if maxChars <= 0 || len(text) <= maxChars {
		return text
	}
	cut := maxChars
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// sortChunksByPage orders retrieval results by ascending page number so
// prompt assembly reads top-to-bottom in document order.
func sortChunksByPage(chunks []models.RetrievedChunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].PageNumber < chunks[j].PageNumber
	})
}
