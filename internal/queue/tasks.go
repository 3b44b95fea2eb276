package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	"cre-chatbot-platform/internal/logger"
	"cre-chatbot-platform/services"
)

const TaskProcessDocument = "document:process"

type DocumentProcessPayload struct {
	DocumentID string `json:"document_id"`
	UserID     string `json:"user_id"`
	FilePath   string `json:"file_path"`
}

// NewDocumentProcessTask enqueues extraction and indexing for an upload too
// large to process inline.
func NewDocumentProcessTask(documentID, userID, filePath string) (*asynq.Task, error) {
	payload, err := json.Marshal(DocumentProcessPayload{
		DocumentID: documentID,
		UserID:     userID,
		FilePath:   filePath,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskProcessDocument,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue("documents"),
	), nil
}

// TaskProcessor hosts the worker-side handlers.
type TaskProcessor struct {
	processor *services.DocumentProcessor
}

func NewTaskProcessor(processor *services.DocumentProcessor) *TaskProcessor {
	return &TaskProcessor{processor: processor}
}

func (p *TaskProcessor) HandleDocumentProcess(ctx context.Context, t *asynq.Task) error {
	var payload DocumentProcessPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	logger.Info("processing document task", "doc_id", payload.DocumentID, "user_id", payload.UserID)

	content, err := os.ReadFile(payload.FilePath)
	if err != nil {
		// File gone from staging: retrying will not help
		logger.Error("staged upload missing", "path", payload.FilePath, "error", err)
		return fmt.Errorf("read staged file: %v: %w", err, asynq.SkipRetry)
	}

	if _, _, err := p.processor.ProcessDocument(ctx, payload.DocumentID, payload.UserID, content); err != nil {
		return err
	}

	// Staged file is no longer needed after successful indexing
	if err := os.Remove(payload.FilePath); err != nil {
		logger.Warn("failed to remove staged file", "path", payload.FilePath, "error", err)
	}
	return nil
}

// Mux returns the task router for the worker server.
func (p *TaskProcessor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskProcessDocument, p.HandleDocumentProcess)
	return mux
}

// RedisOpt builds the asynq connection options from the shared Redis
// settings. The queue requires Redis; fallback mode covers the context
// store only.
func RedisOpt(redisURL, password string, db int) (asynq.RedisClientOpt, error) {
	if redisURL == "" {
		return asynq.RedisClientOpt{}, fmt.Errorf("REDIS_URL is required for the task queue")
	}
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := asynq.ParseRedisURI(redisURL)
		if err != nil {
			return asynq.RedisClientOpt{}, err
		}
		clientOpt, ok := opt.(asynq.RedisClientOpt)
		if !ok {
			return asynq.RedisClientOpt{}, fmt.Errorf("unsupported Redis URI scheme")
		}
		return clientOpt, nil
	}
	return asynq.RedisClientOpt{Addr: redisURL, Password: password, DB: db}, nil
}
