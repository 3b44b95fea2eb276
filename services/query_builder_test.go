package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"cre-chatbot-platform/models"
)

func newTestQueryBuilder(searcher ChunkSearcher) *ConversationalQueryBuilder {
	engine := NewRetrievalEngine(NewContextStore(nil, nil, ContextStoreOptions{}), searcher, 1500)
	return NewConversationalQueryBuilder(engine, QueryBuilderOptions{TopK: 6, MaxResults: 10})
}

func TestBuildEnhancedQueryExpandsFinancialTerms(t *testing.T) {
	qb := newTestQueryBuilder(&fakeSearcher{})

	query := qb.BuildEnhancedQuery("What was the NOI in year 1?", nil)
	lower := strings.ToLower(query)

	if !strings.HasPrefix(query, "What was the NOI in year 1?") {
		t.Fatalf("original message must lead the query, got %q", query)
	}
	for _, want := range []string{"net operating income", "year-1", "yr1"} {
		if !strings.Contains(lower, want) {
			t.Fatalf("expanded query missing %q: %q", want, query)
		}
	}
}

func TestBuildEnhancedQueryNoDuplicateTerms(t *testing.T) {
	qb := newTestQueryBuilder(&fakeSearcher{})

	query := qb.BuildEnhancedQuery("net operating income statement", nil)
	lower := strings.ToLower(query)

	if strings.Count(lower, "net operating income") != 1 {
		t.Fatalf("term duplicated in expansion: %q", query)
	}
}

func TestBuildEnhancedQueryIncludesRecentTurns(t *testing.T) {
	qb := newTestQueryBuilder(&fakeSearcher{})

	turns := []string{"turn one", "turn two", "turn three", "turn four"}
	query := qb.BuildEnhancedQuery("what about vacancy", turns)

	if strings.Contains(query, "turn one") {
		t.Fatalf("only the last three turns should be appended: %q", query)
	}
	for _, want := range []string{"turn two", "turn three", "turn four"} {
		if !strings.Contains(query, want) {
			t.Fatalf("query missing turn %q: %q", want, query)
		}
	}
}

func TestBuildEnhancedQuerySkipsDuplicateTurn(t *testing.T) {
	qb := newTestQueryBuilder(&fakeSearcher{})

	query := qb.BuildEnhancedQuery("what is the cap rate", []string{"what is the cap rate"})
	if strings.Count(query, "what is the cap rate") != 1 {
		t.Fatalf("duplicate turn repeated: %q", query)
	}
}

func TestBuildEnhancedQueryCategoryWideningIsBounded(t *testing.T) {
	qb := newTestQueryBuilder(&fakeSearcher{})

	base := "what is the dscr"
	query := qb.BuildEnhancedQuery(base, nil)
	lower := strings.ToLower(query)

	// The debt category was touched; count how many of its unused synonyms
	// were appended
	added := 0
	for _, term := range domainTermCategories["debt"] {
		if !strings.Contains(strings.ToLower(base+" debt service coverage ratio"), term) &&
			strings.Contains(lower, term) {
			added++
		}
	}
	if added > 2 {
		t.Fatalf("category widening added %d synonyms, want at most 2: %q", added, query)
	}
	// Untouched categories contribute nothing
	if strings.Contains(lower, "unit mix") || strings.Contains(lower, "amenities") {
		t.Fatalf("untouched category leaked into query: %q", query)
	}
}

func TestRelevantChunksDedupesAndSortsByPage(t *testing.T) {
	searcher := &fakeSearcher{searchRows: []models.DocChunkIndex{
		{Text: "short p2", Page: 2, ChunkIndex: 5},
		{Text: "much longer chunk on page two", Page: 2, ChunkIndex: 6},
		{Text: "page one text", Page: 1, ChunkIndex: 0},
	}}
	qb := newTestQueryBuilder(searcher)

	turns := []models.ChatTurn{{Role: "user", Content: "rent roll"}}
	got := qb.RelevantChunks(context.Background(), persistedID(), turns, "u")

	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2 after page dedupe", len(got))
	}
	if got[0].PageNumber != 1 || got[1].PageNumber != 2 {
		t.Fatalf("pages out of order: %d, %d", got[0].PageNumber, got[1].PageNumber)
	}
	if got[1].Content != "much longer chunk on page two" {
		t.Fatalf("dedupe kept %q, want the longest candidate", got[1].Content)
	}
}

// headingOnlySearcher finds nothing for arbitrary queries but answers the
// canonical heading probes, emulating a document the enhanced query misses.
type headingOnlySearcher struct {
	fakeSearcher
}

func (h *headingOnlySearcher) ScanChunks(ctx context.Context, docID, userID, substr string, limit int) ([]models.DocChunkIndex, error) {
	h.scanCalls++
	if strings.Contains(strings.ToLower(substr), "rent roll") {
		return []models.DocChunkIndex{{Text: "Rent Roll: 42 units", Page: 4}}, nil
	}
	return nil, nil
}

func TestRelevantChunksHeadingFallback(t *testing.T) {
	searcher := &headingOnlySearcher{}
	qb := newTestQueryBuilder(searcher)

	turns := []models.ChatTurn{{Role: "user", Content: "zzzz unanswerable"}}
	got := qb.RelevantChunks(context.Background(), persistedID(), turns, "u")

	if len(got) != 1 || got[0].PageNumber != 4 {
		t.Fatalf("got %+v, want the rent roll chunk from the heading probe", got)
	}
}

func TestRelevantChunksEmptyConversation(t *testing.T) {
	qb := newTestQueryBuilder(&fakeSearcher{})

	if got := qb.RelevantChunks(context.Background(), persistedID(), nil, "u"); got != nil {
		t.Fatalf("got %v, want nil for empty conversation", got)
	}
	turns := []models.ChatTurn{{Role: "assistant", Content: "hello"}}
	if got := qb.RelevantChunks(context.Background(), persistedID(), turns, "u"); got != nil {
		t.Fatalf("got %v, want nil with no user turn", got)
	}
}

func TestSplitConversation(t *testing.T) {
	turns := []models.ChatTurn{
		{Role: "user", Content: "first question"},
		{Role: "assistant", Content: "an answer"},
		{Role: "user", Content: "  "},
		{Role: "user", Content: "latest question"},
	}

	last, recent := splitConversation(turns)
	if last != "latest question" {
		t.Fatalf("last = %q", last)
	}
	if len(recent) != 2 || recent[0] != "first question" || recent[1] != "an answer" {
		t.Fatalf("recent = %v", recent)
	}
}

func TestFallbackHeadingRetrievalSurvivesProbeErrors(t *testing.T) {
	local := NewLocalStore()
	store := NewContextStore(nil, local, ContextStoreOptions{TTL: time.Minute, PartThreshold: 4096})
	engine := NewRetrievalEngine(store, &fakeSearcher{}, 1500)
	qb := NewConversationalQueryBuilder(engine, QueryBuilderOptions{})
	ctx := context.Background()

	// A torn ephemeral context makes every probe error; sweep still returns
	doc := &models.DocumentContext{Chunks: testChunks(60, 500)}
	if !store.SetContext(ctx, "temp-probe", "u", doc) {
		t.Fatal("SetContext returned false")
	}
	local.Delete(partKey("temp-probe", 0))

	got := qb.FallbackHeadingRetrieval(ctx, "temp-probe", "u")
	if got != nil {
		t.Fatalf("got %v, want nil when every probe fails", got)
	}
}
