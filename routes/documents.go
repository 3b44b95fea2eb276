package routes

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cre-chatbot-platform/internal/config"
	"cre-chatbot-platform/internal/logger"
	"cre-chatbot-platform/internal/queue"
	"cre-chatbot-platform/middleware"
	"cre-chatbot-platform/models"
	"cre-chatbot-platform/services"
	"cre-chatbot-platform/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type DocumentDeps struct {
	Config    *config.Config
	DB        *mongo.Database
	Store     *services.ContextStore
	Processor *services.DocumentProcessor
	Guard     *services.IdempotencyGuard
	Queue     *asynq.Client // nil when Redis is not configured
}

func SetupDocumentRoutes(router *gin.Engine, deps DocumentDeps, authMiddleware *middleware.AuthMiddleware) {
	docs := router.Group("/api/documents")
	docs.Use(authMiddleware.RequireAuth())
	docs.Use(middleware.RequestSizeLimit(deps.Config.MaxFileSize))

	documentsCollection := deps.DB.Collection("documents")

	docs.POST("", func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		if userID == "" {
			utils.RespondWithUnauthorized(c, "User ID required")
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			utils.RespondWithBadRequest(c, "No file provided", gin.H{"error": err.Error()})
			return
		}
		if fileHeader.Size > deps.Config.MaxFileSize {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge, "file_too_large",
				"File exceeds maximum size", gin.H{"max_size": deps.Config.MaxFileSize})
			return
		}
		if !typeAllowed(deps.Config.AllowedTypes, fileHeader.Header.Get("Content-Type")) {
			utils.RespondWithError(c, http.StatusUnsupportedMediaType, "unsupported_type",
				"File type is not accepted", gin.H{"allowed": deps.Config.AllowedTypes})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to read upload", nil)
			return
		}
		defer file.Close()

		content, err := io.ReadAll(file)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to read upload", nil)
			return
		}

		ctx := c.Request.Context()
		hash := utils.ContentHash(content)

		// Suppress duplicate submissions of the same file in a short window
		idemKey := c.GetHeader("X-Idempotency-Key")
		if idemKey == "" {
			idemKey = userID + ":" + hash
		}
		if deps.Guard.IsDuplicate(ctx, idemKey) {
			utils.RespondWithConflict(c, "Duplicate upload in progress", gin.H{"content_hash": hash})
			return
		}
		deps.Guard.MarkProcessed(ctx, idemKey, userID)

		ephemeral := c.PostForm("ephemeral") == "true"
		if ephemeral {
			docID := models.EphemeralIDPrefix + uuid.NewString()
			chunkCount, pages, err := deps.Processor.ProcessEphemeral(ctx, docID, userID, content)
			if err != nil {
				utils.RespondWithError(c, http.StatusUnprocessableEntity, "processing_failed",
					"Failed to process document", gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, models.UploadResponse{
				ID:         docID,
				Filename:   fileHeader.Filename,
				Status:     models.StatusReady,
				ChunkCount: chunkCount,
				Pages:      pages,
				Ephemeral:  true,
				Message:    "Document processed",
			})
			return
		}

		now := time.Now()
		doc := models.Document{
			UserID:       userID,
			Filename:     fmt.Sprintf("%s_%s", uuid.NewString(), filepath.Base(fileHeader.Filename)),
			OriginalName: fileHeader.Filename,
			ContentHash:  hash,
			Status:       models.StatusProcessing,
			UploadedAt:   now,
		}
		res, err := documentsCollection.InsertOne(ctx, doc)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to create document record", nil)
			return
		}
		docID := res.InsertedID.(primitive.ObjectID).Hex()

		// Small uploads are processed inline; larger ones go to the worker
		if fileHeader.Size <= deps.Config.SyncProcessingLimit || deps.Queue == nil {
			chunkCount, pages, err := deps.Processor.ProcessDocument(ctx, docID, userID, content)
			if err != nil {
				utils.RespondWithError(c, http.StatusUnprocessableEntity, "processing_failed",
					"Failed to process document", gin.H{"error": err.Error(), "id": docID})
				return
			}
			c.JSON(http.StatusOK, models.UploadResponse{
				ID:         docID,
				Filename:   fileHeader.Filename,
				Status:     models.StatusReady,
				ChunkCount: chunkCount,
				Pages:      pages,
				Message:    "Document processed",
			})
			return
		}

		stagedPath := filepath.Join(deps.Config.FileStorageDir, doc.Filename)
		if err := os.MkdirAll(deps.Config.FileStorageDir, 0o755); err != nil {
			utils.RespondWithInternalError(c, "Failed to stage upload", nil)
			return
		}
		if err := os.WriteFile(stagedPath, content, 0o644); err != nil {
			utils.RespondWithInternalError(c, "Failed to stage upload", nil)
			return
		}

		task, err := queue.NewDocumentProcessTask(docID, userID, stagedPath)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to enqueue processing", nil)
			return
		}
		info, err := deps.Queue.EnqueueContext(ctx, task)
		if err != nil {
			logger.Error("enqueue failed", "doc_id", docID, "error", err)
			utils.RespondWithInternalError(c, "Failed to enqueue processing", nil)
			return
		}

		c.JSON(http.StatusAccepted, models.UploadResponse{
			ID:       docID,
			Filename: fileHeader.Filename,
			Status:   models.StatusProcessing,
			Message:  "Document queued for processing",
			TaskID:   info.ID,
		})
	})

	docs.GET("/:id/status", func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		docID := c.Param("id")
		ctx := c.Request.Context()

		rec := deps.Store.GetStatus(ctx, docID, userID)
		if rec.Status != models.StatusMissing {
			c.JSON(http.StatusOK, rec)
			return
		}

		// Cache entry expired or was never written; persisted documents
		// still report from their durable record
		if models.IsPersistedDocID(docID) {
			oid, _ := primitive.ObjectIDFromHex(docID)
			var doc models.Document
			dbCtx, cancel := utils.WithTimeout(ctx)
			err := documentsCollection.FindOne(dbCtx, bson.M{"_id": oid, "user_id": userID}).Decode(&doc)
			cancel()
			if err == nil {
				c.JSON(http.StatusOK, models.StatusRecord{
					Status:       doc.Status,
					Error:        doc.ErrorMessage,
					PagesIndexed: doc.Pages,
				})
				return
			}
		}

		c.JSON(http.StatusOK, models.StatusRecord{Status: models.StatusMissing})
	})

	docs.GET("", func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		ctx := c.Request.Context()

		cursor, err := documentsCollection.Find(ctx, bson.M{"user_id": userID},
			options.Find().SetSort(bson.D{{Key: "uploaded_at", Value: -1}}))
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to list documents", nil)
			return
		}
		defer cursor.Close(ctx)

		var list []models.Document
		if err := cursor.All(ctx, &list); err != nil {
			utils.RespondWithInternalError(c, "Failed to decode documents", nil)
			return
		}

		c.JSON(http.StatusOK, gin.H{"documents": list, "count": len(list)})
	})

	docs.DELETE("/:id", func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		docID := c.Param("id")
		ctx := c.Request.Context()

		if models.IsEphemeralDocID(docID) {
			if !deps.Store.DeleteContextOwned(ctx, docID, userID) {
				utils.RespondWithNotFound(c, "Document not found")
				return
			}
			c.JSON(http.StatusOK, gin.H{"message": "Document deleted", "id": docID})
			return
		}

		oid, err := primitive.ObjectIDFromHex(docID)
		if err != nil {
			utils.RespondWithBadRequest(c, "Invalid document id", nil)
			return
		}

		res, err := documentsCollection.DeleteOne(ctx, bson.M{"_id": oid, "user_id": userID})
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to delete document", nil)
			return
		}
		if res.DeletedCount == 0 {
			utils.RespondWithNotFound(c, "Document not found")
			return
		}

		if _, err := deps.DB.Collection("doc_chunks").DeleteMany(ctx, bson.M{"document_id": oid}); err != nil {
			logger.Error("failed to delete chunk rows", "doc_id", docID, "error", err)
		}
		deps.Store.DeleteContext(ctx, docID)

		c.JSON(http.StatusOK, gin.H{"message": "Document deleted", "id": docID})
	})
}

// typeAllowed checks an upload's declared content type against the
// configured allow list. Parameters like "; charset=" are ignored.
func typeAllowed(allowed []string, contentType string) bool {
	if mediaType, _, found := strings.Cut(contentType, ";"); found {
		contentType = mediaType
	}
	contentType = strings.TrimSpace(contentType)
	for _, t := range allowed {
		if strings.EqualFold(strings.TrimSpace(t), contentType) {
			return true
		}
	}
	return false
}
