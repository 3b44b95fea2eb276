package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Document is the durable record for a persisted upload. Chunk rows live in
// the doc_chunks collection (DocChunkIndex); this record carries lifecycle
// and metadata only.
type Document struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID       string             `bson:"user_id" json:"user_id"`
	Filename     string             `bson:"filename" json:"filename"`
	OriginalName string             `bson:"original_name" json:"original_name"`
	FilePath     string             `bson:"file_path" json:"file_path"`
	ContentHash  string             `bson:"content_hash" json:"content_hash"`
	Status       string             `bson:"status" json:"status"`
	ErrorMessage string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	ChunkCount   int                `bson:"chunk_count" json:"chunk_count"`
	Pages        int                `bson:"pages" json:"pages"`
	UploadedAt   time.Time          `bson:"uploaded_at" json:"uploaded_at"`
	ProcessedAt  *time.Time         `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
}

// UploadResponse is returned after a successful upload request.
type UploadResponse struct {
	ID         string `json:"id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count,omitempty"`
	Pages      int    `json:"pages,omitempty"`
	Ephemeral  bool   `json:"ephemeral"`
	Message    string `json:"message"`
	TaskID     string `json:"task_id,omitempty"`
}
