package services

import (
	"context"
	"fmt"
	"time"

	"cre-chatbot-platform/models"
	"cre-chatbot-platform/utils"

	"github.com/xuri/excelize/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ExportService produces Excel workbooks of stored conversations.
type ExportService struct {
	messages *mongo.Collection
}

func NewExportService(messages *mongo.Collection) *ExportService {
	return &ExportService{messages: messages}
}

// ExportConversation renders a conversation as an Excel workbook.
// Ownership is enforced by the query filter; an empty userID skips the
// owner scope and is reserved for admin callers.
func (es *ExportService) ExportConversation(ctx context.Context, conversationID, userID string) ([]byte, string, error) {
	filter := bson.M{"conversation_id": conversationID}
	if userID != "" {
		filter["user_id"] = userID
	}

	ctx, cancel := utils.WithExportTimeout(ctx)
	defer cancel()

	cursor, err := es.messages.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, "", fmt.Errorf("failed to query messages: %w", err)
	}
	defer cursor.Close(ctx)

	var msgs []models.Message
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, "", fmt.Errorf("failed to decode messages: %w", err)
	}
	if len(msgs) == 0 {
		return nil, "", mongo.ErrNoDocuments
	}

	f := excelize.NewFile()
	defer f.Close()

	sheetName := "Conversation"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{"Timestamp", "Message", "Reply", "Documents", "Pages Cited", "Token Cost"}
	for i, header := range headers {
		cell := fmt.Sprintf("%c1", 'A'+i)
		f.SetCellValue(sheetName, cell, header)
	}

	totalTokens := 0
	for rowIdx, msg := range msgs {
		row := rowIdx + 2
		f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), msg.Timestamp.Format("2006-01-02 15:04:05"))
		f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), msg.Message)
		f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), msg.Reply)
		f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), fmt.Sprintf("%v", msg.DocumentIDs))
		f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), fmt.Sprintf("%v", msg.ContextPages))
		f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), msg.TokenCost)
		totalTokens += msg.TokenCost
	}

	summaryRow := len(msgs) + 3
	f.SetCellValue(sheetName, fmt.Sprintf("A%d", summaryRow), "Total tokens")
	f.SetCellValue(sheetName, fmt.Sprintf("B%d", summaryRow), totalTokens)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("failed to write workbook: %w", err)
	}

	filename := fmt.Sprintf("conversation_%s_%s.xlsx", conversationID, time.Now().Format("20060102_150405"))
	return buf.Bytes(), filename, nil
}
