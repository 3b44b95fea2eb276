package services

import (
	"context"
	"encoding/json"
	"time"

	"cre-chatbot-platform/internal/logger"
)

func idempotencyKey(key string) string { return "idem:" + key }

// IdempotencyRecord marks one observed request; it exists only to detect
// duplicates inside the TTL window.
type IdempotencyRecord struct {
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id"`
	RequestID string    `json:"request_id"`
}

// IdempotencyGuard suppresses duplicate execution of side-effecting
// requests using the context store as its coordination substrate. It is
// best-effort: without a compare-and-swap primitive two near-simultaneous
// duplicates can both pass, and when the store is unavailable requests are
// allowed through rather than rejected.
type IdempotencyGuard struct {
	store *ContextStore
	ttl   time.Duration
}

func NewIdempotencyGuard(store *ContextStore, ttl time.Duration) *IdempotencyGuard {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &IdempotencyGuard{store: store, ttl: ttl}
}

// IsDuplicate reports whether key was already processed inside the TTL
// window. A failed coordination check favors availability: the request is
// treated as new and the degradation is logged.
func (g *IdempotencyGuard) IsDuplicate(ctx context.Context, key string) bool {
	if !g.store.Available() {
		return false
	}
	_, found, err := g.store.kvGet(ctx, idempotencyKey(key))
	if err != nil {
		logger.Warn("idempotency check degraded, allowing request", "key", key, "error", err)
		return false
	}
	return found
}

// MarkProcessed records key before side-effecting work begins. Failure to
// record is logged but never blocks the request.
func (g *IdempotencyGuard) MarkProcessed(ctx context.Context, key, userID string) {
	rec := IdempotencyRecord{Timestamp: time.Now(), UserID: userID, RequestID: key}
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if !g.store.Available() {
		return
	}
	if err := g.store.kvSet(ctx, idempotencyKey(key), string(data), g.ttl); err != nil {
		logger.Warn("idempotency mark failed", "key", key, "error", err)
	}
}
