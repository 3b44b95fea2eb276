package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Message is one stored chat turn: the user message plus the generated reply.
type Message struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID         string             `bson:"user_id" json:"user_id"`
	Message        string             `bson:"message" json:"message"`
	Reply          string             `bson:"reply" json:"reply"`
	Timestamp      time.Time          `bson:"timestamp" json:"timestamp"`
	ConversationID string             `bson:"conversation_id" json:"conversation_id"`
	DocumentIDs    []string           `bson:"document_ids,omitempty" json:"document_ids,omitempty"`
	TokenCost      int                `bson:"token_cost" json:"token_cost"`
	ContextPages   []int              `bson:"context_pages,omitempty" json:"context_pages,omitempty"`
}

// ChatTurn is the wire shape of one prior conversation turn sent by the UI.
type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Message        string     `json:"message" binding:"required,min=1,max=2000"`
	ConversationID string     `json:"conversation_id,omitempty"`
	DocumentIDs    []string   `json:"document_ids,omitempty"`
	History        []ChatTurn `json:"history,omitempty"`
}

type ChatResponse struct {
	Reply          string    `json:"reply"`
	TokensUsed     int       `json:"tokens_used"`
	ConversationID string    `json:"conversation_id"`
	ContextPages   []int     `json:"context_pages,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type ConversationHistory struct {
	ConversationID string    `json:"conversation_id"`
	Messages       []Message `json:"messages"`
	TotalTokens    int       `json:"total_tokens"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
