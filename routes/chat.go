package routes

import (
	"net/http"
	"time"

	"cre-chatbot-platform/internal/ai"
	"cre-chatbot-platform/internal/config"
	"cre-chatbot-platform/internal/logger"
	"cre-chatbot-platform/internal/telemetry"
	"cre-chatbot-platform/middleware"
	"cre-chatbot-platform/models"
	"cre-chatbot-platform/services"
	"cre-chatbot-platform/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ChatDeps struct {
	Config       *config.Config
	DB           *mongo.Database
	QueryBuilder *services.ConversationalQueryBuilder
	Gemini       *ai.GeminiClient
	Metrics      *telemetry.Metrics
}

func SetupChatRoutes(router *gin.Engine, deps ChatDeps, authMiddleware *middleware.AuthMiddleware) {
	chat := router.Group("/api/chat")
	chat.Use(authMiddleware.RequireAuth())

	messagesCollection := deps.DB.Collection("messages")

	chat.POST("/send", func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		userID := middleware.GetUserID(c)
		if userID == "" {
			utils.RespondWithUnauthorized(c, "User ID required")
			return
		}

		conversationID := req.ConversationID
		if conversationID == "" {
			conversationID = uuid.NewString()
		}

		ctx := c.Request.Context()

		if err := ai.CheckUserQuota(ctx, userID, 1500, deps.DB); err != nil {
			if err == ai.ErrQuotaExceeded {
				utils.RespondWithError(c, http.StatusPaymentRequired, "quota_exceeded",
					"Daily usage quota exceeded", nil)
				return
			}
			logger.Warn("quota check failed", "user_id", userID, "error", err)
		}

		turns := append([]models.ChatTurn{}, req.History...)
		turns = append(turns, models.ChatTurn{Role: "user", Content: req.Message})

		// Gather context across the referenced documents
		var chunks []models.RetrievedChunk
		for _, docID := range req.DocumentIDs {
			docChunks := deps.QueryBuilder.RelevantChunks(ctx, docID, turns, userID)
			chunks = append(chunks, docChunks...)
			if len(chunks) >= deps.Config.MaxContextChunks {
				chunks = chunks[:deps.Config.MaxContextChunks]
				break
			}
		}

		if deps.Metrics != nil {
			for _, chunk := range chunks {
				deps.Metrics.RecordRetrievalStrategy(chunk.ChunkType, 1)
			}
		}

		reply, err := deps.Gemini.AnswerQuestion(ctx, req.Message, chunks, req.History)
		if err != nil {
			logger.Error("answer generation failed", "conversation_id", conversationID, "error", err)
			utils.RespondWithInternalError(c, "Failed to generate response", nil)
			return
		}

		pages := pagesCited(chunks)
		tokenCost := (len(req.Message) + len(reply)) / 4
		if deps.Metrics != nil {
			deps.Metrics.RecordTokensUsed(int64(tokenCost), "gemini-2.0-flash")
		}

		msg := models.Message{
			UserID:         userID,
			Message:        req.Message,
			Reply:          reply,
			Timestamp:      time.Now(),
			ConversationID: conversationID,
			DocumentIDs:    req.DocumentIDs,
			TokenCost:      tokenCost,
			ContextPages:   pages,
		}
		if _, err := messagesCollection.InsertOne(ctx, msg); err != nil {
			logger.Error("failed to persist message", "conversation_id", conversationID, "error", err)
		}

		c.JSON(http.StatusOK, models.ChatResponse{
			Reply:          reply,
			TokensUsed:     tokenCost,
			ConversationID: conversationID,
			ContextPages:   pages,
			Timestamp:      msg.Timestamp,
		})
	})

	chat.GET("/conversations/:id", func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		conversationID := c.Param("id")

		ctx := c.Request.Context()
		cursor, err := messagesCollection.Find(ctx,
			bson.M{"conversation_id": conversationID, "user_id": userID},
			options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to load conversation", nil)
			return
		}
		defer cursor.Close(ctx)

		var msgs []models.Message
		if err := cursor.All(ctx, &msgs); err != nil {
			utils.RespondWithInternalError(c, "Failed to decode conversation", nil)
			return
		}
		if len(msgs) == 0 {
			utils.RespondWithNotFound(c, "Conversation not found")
			return
		}

		total := 0
		for _, m := range msgs {
			total += m.TokenCost
		}

		c.JSON(http.StatusOK, models.ConversationHistory{
			ConversationID: conversationID,
			Messages:       msgs,
			TotalTokens:    total,
			CreatedAt:      msgs[0].Timestamp,
			UpdatedAt:      msgs[len(msgs)-1].Timestamp,
		})
	})

	chat.GET("/conversations", func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		ctx := c.Request.Context()

		ids, err := messagesCollection.Distinct(ctx, "conversation_id", bson.M{"user_id": userID})
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list conversations", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{"conversations": ids, "count": len(ids)})
	})
}

func pagesCited(chunks []models.RetrievedChunk) []int {
	seen := make(map[int]bool)
	var pages []int
	for _, chunk := range chunks {
		if chunk.PageNumber > 0 && !seen[chunk.PageNumber] {
			seen[chunk.PageNumber] = true
			pages = append(pages, chunk.PageNumber)
		}
	}
	return pages
}
