package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cre-chatbot-platform/internal/logger"
	"cre-chatbot-platform/internal/telemetry"
	"cre-chatbot-platform/models"
	"cre-chatbot-platform/utils"

	"github.com/redis/go-redis/v9"
)

// ErrPartialContext is returned when a partition index declares parts that
// cannot all be read back. A truncated chunk set would silently corrupt the
// prompt context downstream, so this is the one store failure that escapes
// the adapter boundary.
var ErrPartialContext = errors.New("context part missing")

func statusKey(docID string) string { return "ctx:" + docID + ":status" }
func payloadKey(docID string) string { return "ctx:" + docID }
func indexKey(docID string) string  { return "ctx:" + docID + ":index" }
func partKey(docID string, n int) string {
	return fmt.Sprintf("ctx:%s:part:%d", docID, n)
}

// LocalStore is the in-process fallback map used when Redis was never
// configured. Entries expire on TTL check at access time; the cron janitor
// additionally sweeps expired entries. Explicitly single-instance and
// non-durable: data written here is invisible to other instances.
type LocalStore struct {
	mu      sync.Mutex
	entries map[string]localEntry
	now     func() time.Time
}

type localEntry struct {
	value     string
	expiresAt time.Time
}

func NewLocalStore() *LocalStore {
	return &LocalStore{
		entries: make(map[string]localEntry),
		now:     time.Now,
	}
}

func (ls *LocalStore) Get(key string) (string, bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	e, ok := ls.entries[key]
	if !ok {
		return "", false
	}
	if ls.now().After(e.expiresAt) {
		delete(ls.entries, key)
		return "", false
	}
	return e.value, true
}

func (ls *LocalStore) Set(key, value string, ttl time.Duration) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	ls.entries[key] = localEntry{value: value, expiresAt: ls.now().Add(ttl)}
}

func (ls *LocalStore) Delete(key string) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	delete(ls.entries, key)
}

// Purge removes expired entries and reports how many were dropped.
func (ls *LocalStore) Purge() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()

	now := ls.now()
	dropped := 0
	for key, e := range ls.entries {
		if now.After(e.expiresAt) {
			delete(ls.entries, key)
			dropped++
		}
	}
	return dropped
}

func (ls *LocalStore) Len() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.entries)
}

// ContextStore persists parsed-document chunk sets across stateless
// invocations. Payloads larger than the part threshold are partitioned into
// an index entry plus N part entries sharing one TTL.
//
// Backing order: Redis when configured, otherwise the in-process LocalStore.
// When neither is present the store is permanently unavailable and every
// operation short-circuits to its safe default.
type ContextStore struct {
	rdb           *redis.Client
	local         *LocalStore
	ttl           time.Duration
	partThreshold int
	retry         utils.RetryPolicy
	metrics       *telemetry.Metrics
}

type ContextStoreOptions struct {
	TTL           time.Duration
	PartThreshold int
	Retry         utils.RetryPolicy
	Metrics       *telemetry.Metrics
}

func NewContextStore(rdb *redis.Client, local *LocalStore, opts ContextStoreOptions) *ContextStore {
	if opts.TTL <= 0 {
		opts.TTL = 30 * time.Minute
	}
	if opts.PartThreshold <= 0 {
		opts.PartThreshold = 900 * 1024
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = utils.DefaultRetryPolicy()
	}
	if rdb == nil && local == nil {
		logger.Warn("context store has no backing store; all operations will short-circuit")
	}
	return &ContextStore{
		rdb:           rdb,
		local:         local,
		ttl:           opts.TTL,
		partThreshold: opts.PartThreshold,
		retry:         opts.Retry,
		metrics:       opts.Metrics,
	}
}

func (cs *ContextStore) recordOp(operation, outcome string) {
	if cs.metrics != nil {
		cs.metrics.RecordContextCacheOp(operation, outcome)
	}
}

// Available reports whether any backing store exists. False means the store
// was never configured at process start; it never retries connecting.
func (cs *ContextStore) Available() bool {
	return cs.rdb != nil || cs.local != nil
}

// TTL exposes the configured entry lifetime.
func (cs *ContextStore) TTL() time.Duration { return cs.ttl }

func (cs *ContextStore) kvSet(ctx context.Context, key, value string, ttl time.Duration) error {
	if cs.rdb != nil {
		return cs.retry.Do(ctx, func() error {
			return cs.rdb.Set(ctx, key, value, ttl).Err()
		})
	}
	if cs.local != nil {
		cs.local.Set(key, value, ttl)
		return nil
	}
	return errors.New("no backing store configured")
}

// kvGet returns (value, found, err). Absence is not an error.
func (cs *ContextStore) kvGet(ctx context.Context, key string) (string, bool, error) {
	if cs.rdb != nil {
		var val string
		var found bool
		err := cs.retry.Do(ctx, func() error {
			v, err := cs.rdb.Get(ctx, key).Result()
			if err == redis.Nil {
				found = false
				return nil
			}
			if err != nil {
				return err
			}
			val, found = v, true
			return nil
		})
		if err != nil {
			return "", false, err
		}
		return val, found, nil
	}
	if cs.local != nil {
		v, ok := cs.local.Get(key)
		return v, ok, nil
	}
	return "", false, errors.New("no backing store configured")
}

func (cs *ContextStore) kvDelete(ctx context.Context, key string) {
	if cs.rdb != nil {
		_ = cs.rdb.Del(ctx, key).Err()
		return
	}
	if cs.local != nil {
		cs.local.Delete(key)
	}
}

// SetStatus writes a status record with TTL. Returns false instead of
// failing when the store is unavailable or the write cannot complete.
func (cs *ContextStore) SetStatus(ctx context.Context, docID, status, errMsg string) bool {
	if !cs.Available() {
		return false
	}
	return cs.writeStatus(ctx, docID, models.StatusRecord{Status: status, Error: errMsg})
}

func (cs *ContextStore) writeStatus(ctx context.Context, docID string, rec models.StatusRecord) bool {
	data, err := json.Marshal(rec)
	if err != nil {
		logger.Error("marshal status record", "document_id", docID, "error", err)
		return false
	}
	if err := cs.kvSet(ctx, statusKey(docID), string(data), cs.ttl); err != nil {
		logger.Warn("status write failed", "document_id", docID, "error", err)
		return false
	}
	return true
}

// GetStatus returns the document's status record. Absent records, an
// unconfigured store, and ownership mismatches all read as missing so that
// existence never leaks to non-owners. Transient read failure after retry
// exhaustion reads as an error status.
func (cs *ContextStore) GetStatus(ctx context.Context, docID, userID string) models.StatusRecord {
	missing := models.StatusRecord{Status: models.StatusMissing}
	if !cs.Available() {
		return missing
	}

	raw, found, err := cs.kvGet(ctx, statusKey(docID))
	if err != nil {
		logger.Warn("status read failed", "document_id", docID, "error", err)
		return models.StatusRecord{Status: models.StatusError}
	}
	if !found {
		return missing
	}

	var rec models.StatusRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		logger.Warn("status record corrupt", "document_id", docID, "error", err)
		return missing
	}

	if userID != "" {
		if idxRaw, idxFound, idxErr := cs.kvGet(ctx, indexKey(docID)); idxErr == nil && idxFound {
			var idx models.ContextIndex
			if err := json.Unmarshal([]byte(idxRaw), &idx); err == nil && idx.UserID != userID {
				return missing
			}
		}
	}

	return rec
}

// SetContext serializes and stores a document context under one TTL. Large
// payloads are partitioned: N = ceil(serializedSize/threshold) parts with
// chunks divided evenly by count, not byte size, so one oversized chunk can
// still push a part over threshold. A ready status with the part count is
// written once the payload is fully stored.
func (cs *ContextStore) SetContext(ctx context.Context, docID, userID string, doc *models.DocumentContext) bool {
	if !cs.Available() || doc == nil {
		return false
	}
	doc.UserID = userID

	data, err := json.Marshal(doc)
	if err != nil {
		logger.Error("marshal document context", "document_id", docID, "error", err)
		return false
	}

	parts := 1
	if len(data) > cs.partThreshold {
		parts = (len(data) + cs.partThreshold - 1) / cs.partThreshold
		if !cs.writePartitioned(ctx, docID, userID, doc, parts) {
			cs.recordOp("set", "error")
			return false
		}
	} else {
		if err := cs.kvSet(ctx, payloadKey(docID), utils.EncodeCachePayload(data), cs.ttl); err != nil {
			logger.Warn("context write failed", "document_id", docID, "error", err)
			cs.recordOp("set", "error")
			return false
		}
	}

	cs.recordOp("set", "ok")
	return cs.writeStatus(ctx, docID, models.StatusRecord{
		Status:       models.StatusReady,
		Parts:        parts,
		PagesIndexed: doc.Meta.PagesIndexed,
	})
}

func (cs *ContextStore) writePartitioned(ctx context.Context, docID, userID string, doc *models.DocumentContext, parts int) bool {
	perPart := (len(doc.Chunks) + parts - 1) / parts
	if perPart < 1 {
		perPart = 1
	}

	idx := models.ContextIndex{Parts: parts, UserID: userID, Meta: doc.Meta}
	idxData, err := json.Marshal(idx)
	if err != nil {
		logger.Error("marshal context index", "document_id", docID, "error", err)
		return false
	}

	for n := 0; n < parts; n++ {
		start := n * perPart
		end := start + perPart
		if start > len(doc.Chunks) {
			start = len(doc.Chunks)
		}
		if end > len(doc.Chunks) {
			end = len(doc.Chunks)
		}
		partData, err := json.Marshal(doc.Chunks[start:end])
		if err != nil {
			logger.Error("marshal context part", "document_id", docID, "part", n, "error", err)
			return false
		}
		if err := cs.kvSet(ctx, partKey(docID, n), utils.EncodeCachePayload(partData), cs.ttl); err != nil {
			logger.Warn("context part write failed", "document_id", docID, "part", n, "error", err)
			return false
		}
	}

	// Index written last: readers treat its presence as the commit point.
	if err := cs.kvSet(ctx, indexKey(docID), string(idxData), cs.ttl); err != nil {
		logger.Warn("context index write failed", "document_id", docID, "error", err)
		return false
	}

	logger.Info("context partitioned", "document_id", docID, "parts", parts, "chunks", len(doc.Chunks))
	return true
}

// GetContext loads and reassembles a stored document context. A missing
// context, an unconfigured store, and an ownership mismatch all return
// (nil, nil). The only error case is a declared part that cannot be read:
// a partial chunk list is never returned.
func (cs *ContextStore) GetContext(ctx context.Context, docID, userID string) (*models.DocumentContext, error) {
	if !cs.Available() {
		return nil, nil
	}

	idxRaw, idxFound, err := cs.kvGet(ctx, indexKey(docID))
	if err != nil {
		logger.Warn("context index read failed", "document_id", docID, "error", err)
		return nil, nil
	}

	if idxFound {
		var idx models.ContextIndex
		if err := json.Unmarshal([]byte(idxRaw), &idx); err != nil {
			logger.Warn("context index corrupt", "document_id", docID, "error", err)
			return nil, nil
		}
		if idx.UserID != userID {
			cs.recordOp("get", "miss")
			return nil, nil
		}
		doc, err := cs.readPartitioned(ctx, docID, idx)
		if err != nil {
			cs.recordOp("get", "error")
			return nil, err
		}
		cs.recordOp("get", "hit")
		return doc, nil
	}

	raw, found, err := cs.kvGet(ctx, payloadKey(docID))
	if err != nil {
		logger.Warn("context read failed", "document_id", docID, "error", err)
		return nil, nil
	}
	if !found {
		cs.recordOp("get", "miss")
		return nil, nil
	}

	payload, err := utils.DecodeCachePayload(raw)
	if err != nil {
		logger.Warn("context payload corrupt", "document_id", docID, "error", err)
		return nil, nil
	}

	var doc models.DocumentContext
	if err := json.Unmarshal(payload, &doc); err != nil {
		logger.Warn("context payload corrupt", "document_id", docID, "error", err)
		return nil, nil
	}
	if doc.UserID != userID {
		cs.recordOp("get", "miss")
		return nil, nil
	}
	cs.recordOp("get", "hit")
	return &doc, nil
}

func (cs *ContextStore) readPartitioned(ctx context.Context, docID string, idx models.ContextIndex) (*models.DocumentContext, error) {
	doc := &models.DocumentContext{UserID: idx.UserID, Meta: idx.Meta}

	for n := 0; n < idx.Parts; n++ {
		raw, found, err := cs.kvGet(ctx, partKey(docID, n))
		if err != nil {
			return nil, fmt.Errorf("%w: part %d of %d: %v", ErrPartialContext, n, idx.Parts, err)
		}
		if !found {
			return nil, fmt.Errorf("%w: part %d of %d", ErrPartialContext, n, idx.Parts)
		}
		partData, err := utils.DecodeCachePayload(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: part %d of %d: %v", ErrPartialContext, n, idx.Parts, err)
		}
		var chunks []models.Chunk
		if err := json.Unmarshal(partData, &chunks); err != nil {
			return nil, fmt.Errorf("%w: part %d of %d: %v", ErrPartialContext, n, idx.Parts, err)
		}
		doc.Chunks = append(doc.Chunks, chunks...)
	}

	return doc, nil
}

// DeleteContext removes all entries for a document. Best effort.
func (cs *ContextStore) DeleteContext(ctx context.Context, docID string) {
	if !cs.Available() {
		return
	}
	if idxRaw, found, err := cs.kvGet(ctx, indexKey(docID)); err == nil && found {
		var idx models.ContextIndex
		if json.Unmarshal([]byte(idxRaw), &idx) == nil {
			for n := 0; n < idx.Parts; n++ {
				cs.kvDelete(ctx, partKey(docID, n))
			}
		}
		cs.kvDelete(ctx, indexKey(docID))
	}
	cs.kvDelete(ctx, payloadKey(docID))
	cs.kvDelete(ctx, statusKey(docID))
}

// DeleteContextOwned removes a document's entries only when userID owns
// the stored context. Reports whether anything was removed, so callers
// can answer not-found for mismatches without leaking existence.
func (cs *ContextStore) DeleteContextOwned(ctx context.Context, docID, userID string) bool {
	if !cs.Available() {
		return false
	}
	doc, err := cs.GetContext(ctx, docID, userID)
	if doc == nil && err == nil {
		return false
	}
	// err != nil means a torn partitioned context whose index already
	// matched this owner; clearing the remains is still theirs to do.
	cs.DeleteContext(ctx, docID)
	return true
}
