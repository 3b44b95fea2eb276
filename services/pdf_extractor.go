package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"cre-chatbot-platform/internal/logger"
	"cre-chatbot-platform/models"

	"github.com/google/uuid"
	"github.com/ledongthuc/pdf"
)

// PDFExtractor turns an uploaded PDF into the canonical chunk list consumed
// by the context store and the durable chunk index.
type PDFExtractor struct {
	maxChunkSize int
	minChunkSize int
}

func NewPDFExtractor(maxChunkSize int) *PDFExtractor {
	if maxChunkSize <= 0 {
		maxChunkSize = 1200
	}
	return &PDFExtractor{
		maxChunkSize: maxChunkSize,
		minChunkSize: 50,
	}
}

// ExtractChunks extracts per-page text and splits it into page-tagged
// chunks with contiguous ordinal indexes. Pages that fail extraction are
// skipped with a warning rather than failing the document.
func (e *PDFExtractor) ExtractChunks(ctx context.Context, content []byte) ([]models.Chunk, int, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open PDF: %w", err)
	}

	pages := reader.NumPage()
	var chunks []models.Chunk

	for pageNum := 1; pageNum <= pages; pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		text, err := page.GetPlainText(fonts)
		if err != nil {
			logger.Warn("page extraction failed", "page", pageNum, "error", err)
			continue
		}

		for _, piece := range e.splitPageText(text) {
			chunks = append(chunks, models.Chunk{
				ID:         uuid.NewString(),
				Text:       piece,
				Page:       pageNum,
				ChunkIndex: len(chunks),
			})
		}
	}

	if len(chunks) == 0 {
		return nil, 0, fmt.Errorf("no text extracted from %d pages", pages)
	}
	return chunks, pages, nil
}

// splitPageText breaks one page's text into chunks on paragraph boundaries,
// merging fragments too small to retrieve on their own.
func (e *PDFExtractor) splitPageText(text string) []string {
	paragraphs := strings.Split(text, "\n\n")

	var pieces []string
	var current strings.Builder

	flush := func() {
		if current.Len() >= e.minChunkSize {
			pieces = append(pieces, current.String())
		} else if current.Len() > 0 && len(pieces) > 0 {
			pieces[len(pieces)-1] += "\n\n" + current.String()
		} else if current.Len() > 0 {
			pieces = append(pieces, current.String())
		}
		current.Reset()
	}

	for _, para := range paragraphs {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+len(para) > e.maxChunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return pieces
}
