package routes

import (
	"net/http"

	"cre-chatbot-platform/middleware"
	"cre-chatbot-platform/services"
	"cre-chatbot-platform/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
)

func SetupExportRoutes(router *gin.Engine, exportService *services.ExportService, authMiddleware *middleware.AuthMiddleware) {
	export := router.Group("/api/export")
	export.Use(authMiddleware.RequireAuth())

	export.GET("/conversations/:id", func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		conversationID := c.Param("id")

		// Admins may export any user's conversation
		if middleware.GetRole(c) == "admin" {
			userID = ""
		}

		data, filename, err := exportService.ExportConversation(c.Request.Context(), conversationID, userID)
		if err != nil {
			if err == mongo.ErrNoDocuments {
				utils.RespondWithNotFound(c, "Conversation not found")
				return
			}
			utils.RespondWithInternalError(c, "Failed to export conversation", nil)
			return
		}

		c.Header("Content-Disposition", "attachment; filename="+filename)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	})
}
