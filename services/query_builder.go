package services

import (
	"context"
	"regexp"
	"strings"

	"cre-chatbot-platform/internal/logger"
	"cre-chatbot-platform/models"
)

// expansionRule widens a query with alternate phrasings of a matched term so
// lexical retrieval catches documents that spell it differently.
type expansionRule struct {
	pattern   *regexp.Regexp
	additions []string
}

var expansionRules = []expansionRule{
	{regexp.MustCompile(`(?i)\byear[ -]?1\b|\byr ?1\b`), []string{"year 1", "year-1", "yr1"}},
	{regexp.MustCompile(`(?i)\bnoi\b`), []string{"net operating income"}},
	{regexp.MustCompile(`(?i)\bnet operating income\b`), []string{"NOI"}},
	{regexp.MustCompile(`(?i)\bdscr\b`), []string{"debt service coverage ratio"}},
	{regexp.MustCompile(`(?i)\bltv\b`), []string{"loan to value"}},
	{regexp.MustCompile(`(?i)\begi\b`), []string{"effective gross income"}},
	{regexp.MustCompile(`(?i)\bt-?12\b`), []string{"trailing twelve months"}},
	{regexp.MustCompile(`(?i)\bsq\.? ?ft\.?\b|\bsf\b`), []string{"square feet"}},
	{regexp.MustCompile(`(?i)\bcap rate\b`), []string{"capitalization rate"}},
}

// Domain-term categories for bounded recall widening. When the expanded
// query already touches a category, up to two unused synonyms from the same
// category are appended.
var domainTermCategories = map[string][]string{
	"financial":   {"noi", "net operating income", "cash flow", "revenue", "income", "expenses", "cap rate", "egi"},
	"debt":        {"debt", "loan", "ltv", "dscr", "interest rate", "amortization", "mortgage", "refinance"},
	"market":      {"market", "comps", "vacancy", "absorption", "submarket", "rent growth", "demographics"},
	"physical":    {"units", "square feet", "occupancy", "property", "building", "unit mix", "amenities"},
	"assumptions": {"assumptions", "growth rate", "exit", "projection", "underwriting", "hold period", "pro forma"},
}

// categoryOrder keeps widening deterministic across runs.
var categoryOrder = []string{"financial", "debt", "market", "physical", "assumptions"}

// Canonical section headings probed when the enhanced query retrieves
// nothing; offering memoranda almost always contain several of these.
var fallbackHeadings = []string{
	"executive summary",
	"financial summary",
	"rent roll",
	"debt assumptions",
	"operating expenses",
	"market overview",
	"sources and uses",
	"unit mix",
}

const chunksPerHeadingProbe = 2

// ConversationalQueryBuilder expands a raw user query with conversational
// context and domain synonyms, and drives heading-probe fallback retrieval
// when the primary pass comes back empty.
type ConversationalQueryBuilder struct {
	engine     *RetrievalEngine
	topK       int
	maxResults int
	maxChars   int
}

type QueryBuilderOptions struct {
	TopK       int
	MaxResults int
	MaxChars   int
}

func NewConversationalQueryBuilder(engine *RetrievalEngine, opts QueryBuilderOptions) *ConversationalQueryBuilder {
	if opts.TopK <= 0 {
		opts.TopK = 6
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 10
	}
	return &ConversationalQueryBuilder{
		engine:     engine,
		topK:       opts.TopK,
		maxResults: opts.MaxResults,
		maxChars:   opts.MaxChars,
	}
}

// BuildEnhancedQuery widens lastUserMessage with phrasing variants, the last
// three conversation turns (exact duplicates of the current message are
// skipped), and bounded per-category synonym injection.
func (qb *ConversationalQueryBuilder) BuildEnhancedQuery(lastUserMessage string, recentTurns []string) string {
	var sb strings.Builder
	sb.WriteString(lastUserMessage)

	appendMissing := func(terms []string) {
		for _, term := range terms {
			if !strings.Contains(strings.ToLower(sb.String()), strings.ToLower(term)) {
				sb.WriteString(" ")
				sb.WriteString(term)
			}
		}
	}

	for _, rule := range expansionRules {
		if rule.pattern.MatchString(lastUserMessage) {
			appendMissing(rule.additions)
		}
	}

	turns := recentTurns
	if len(turns) > 3 {
		turns = turns[len(turns)-3:]
	}
	for _, turn := range turns {
		if turn == "" || turn == lastUserMessage {
			continue
		}
		sb.WriteString(" ")
		sb.WriteString(turn)
	}

	expanded := strings.ToLower(sb.String())
	for _, category := range categoryOrder {
		terms := domainTermCategories[category]
		touched := false
		for _, term := range terms {
			if strings.Contains(expanded, term) {
				touched = true
				break
			}
		}
		if !touched {
			continue
		}
		added := 0
		for _, term := range terms {
			if added >= 2 {
				break
			}
			if !strings.Contains(strings.ToLower(sb.String()), term) {
				sb.WriteString(" ")
				sb.WriteString(term)
				added++
			}
		}
	}

	return sb.String()
}

// FallbackHeadingRetrieval probes retrieval with canonical section headings,
// accumulating a couple of chunks per heading. Individual probe failures are
// logged and skipped; the probe sweep itself never fails.
func (qb *ConversationalQueryBuilder) FallbackHeadingRetrieval(ctx context.Context, docID, userID string) []models.RetrievedChunk {
	var collected []models.RetrievedChunk
	for _, heading := range fallbackHeadings {
		chunks, err := qb.engine.RetrieveTopK(ctx, docID, heading, chunksPerHeadingProbe, qb.maxChars, userID)
		if err != nil {
			logger.Warn("heading probe failed", "heading", heading, "document_id", docID, "error", err)
			continue
		}
		collected = append(collected, chunks...)
	}
	return collected
}

// RelevantChunks returns ranked chunks for the conversation's latest user
// message: primary retrieval on the enhanced query, heading-probe fallback
// when that is empty, page-level dedupe keeping the longest candidate, and
// ascending page order so downstream prompt assembly mirrors the document.
func (qb *ConversationalQueryBuilder) RelevantChunks(ctx context.Context, docID string, turns []models.ChatTurn, userID string) []models.RetrievedChunk {
	lastMessage, recent := splitConversation(turns)
	if lastMessage == "" {
		return nil
	}

	query := qb.BuildEnhancedQuery(lastMessage, recent)

	chunks, err := qb.engine.RetrieveTopK(ctx, docID, query, qb.topK, qb.maxChars, userID)
	if err != nil {
		logger.Warn("primary retrieval failed", "document_id", docID, "error", err)
		chunks = nil
	}
	if len(chunks) == 0 {
		chunks = qb.FallbackHeadingRetrieval(ctx, docID, userID)
	}

	deduped := dedupeByPage(chunks)
	sortChunksByPage(deduped)
	if len(deduped) > qb.maxResults {
		deduped = deduped[:qb.maxResults]
	}
	return deduped
}

// splitConversation extracts the most recent user message and the text of
// the turns preceding it.
func splitConversation(turns []models.ChatTurn) (string, []string) {
	lastIdx := -1
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == "user" && strings.TrimSpace(turns[i].Content) != "" {
			lastIdx = i
			break
		}
	}
	if lastIdx < 0 {
		return "", nil
	}

	var recent []string
	for _, turn := range turns[:lastIdx] {
		if strings.TrimSpace(turn.Content) != "" {
			recent = append(recent, turn.Content)
		}
	}
	return turns[lastIdx].Content, recent
}

// dedupeByPage keeps one chunk per page, preferring the longest candidate
// text; ties keep the first seen.
func dedupeByPage(chunks []models.RetrievedChunk) []models.RetrievedChunk {
	byPage := make(map[int]models.RetrievedChunk)
	var pages []int
	for _, c := range chunks {
		existing, seen := byPage[c.PageNumber]
		if !seen {
			byPage[c.PageNumber] = c
			pages = append(pages, c.PageNumber)
			continue
		}
		if len(c.Content) > len(existing.Content) {
			byPage[c.PageNumber] = c
		}
	}

	result := make([]models.RetrievedChunk, 0, len(pages))
	for _, p := range pages {
		result = append(result, byPage[p])
	}
	return result
}
