package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// DocChunkIndex is a denormalized chunk row for Atlas Search.
// Keeping a separate collection enables efficient $search filtering by
// document without loading whole documents.
type DocChunkIndex struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	DocumentID primitive.ObjectID `bson:"document_id"`
	UserID     string             `bson:"user_id"`
	ChunkID    string             `bson:"chunk_id"`
	ChunkIndex int                `bson:"chunk_index"`
	Page       int                `bson:"page"`
	Text       string             `bson:"text"`
}
