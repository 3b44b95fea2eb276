package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cre-chatbot-platform/internal/logger"
	"cre-chatbot-platform/models"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"
)

const modelName = "gemini-2.0-flash"

// GeminiClient wraps the Generative AI SDK with a circuit breaker,
// client-side rate limiting, and token accounting.
type GeminiClient struct {
	breaker      *gobreaker.CircuitBreaker
	rateLimiter  *rate.Limiter
	tokenCounter *TokenCounter
	client       *genai.Client
	limits       RateLimits
}

type TokenCounter struct {
	mu              sync.Mutex
	limits          RateLimits
	minuteTokens    int
	dailyTokens     int
	minuteRequests  int
	dailyRequests   int
	lastMinuteReset time.Time
	lastDayReset    time.Time
}

type RateLimits struct {
	RPM int // requests per minute
	TPM int // tokens per minute
	RPD int // requests per day
}

func getRateLimits(tier string) RateLimits {
	switch tier {
	case "tier1":
		return RateLimits{RPM: 1000, TPM: 1000000, RPD: 10000}
	case "tier2":
		return RateLimits{RPM: 2000, TPM: 4000000, RPD: 50000}
	default:
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	}
}

func NewGeminiClient(apiKey string, tier string) (*GeminiClient, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	limits := getRateLimits(tier)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	// RPM limit with a small buffer so we trip client-side, not server-side
	rateLimiter := rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), limits.RPM/10)

	return &GeminiClient{
		breaker:      breaker,
		rateLimiter:  rateLimiter,
		tokenCounter: &TokenCounter{limits: limits},
		client:       client,
		limits:       limits,
	}, nil
}

// AnswerQuestion asks the model to answer a question grounded in retrieved
// document chunks. It cites page numbers when the chunks carry them.
func (gc *GeminiClient) AnswerQuestion(ctx context.Context, question string, chunks []models.RetrievedChunk, history []models.ChatTurn) (string, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.answer_question")
	defer span.End()

	prompt := buildDealDocPrompt(question, chunks, history)
	estimatedTokens := len(prompt) / 4

	span.SetAttributes(
		attribute.Int("gemini.estimated_tokens", estimatedTokens),
		attribute.Int("gemini.context_chunks", len(chunks)),
		attribute.String("gemini.model", modelName),
	)

	if !gc.tokenCounter.CanConsume(estimatedTokens, 1) {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", errors.New("rate limit exceeded: wait before retry")
	}

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", err
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.GenerativeModel(modelName)
		model.SetTemperature(0.2)
		model.SetMaxOutputTokens(2048)

		resp, err := model.GenerateContent(ctx, genai.Text(prompt))
		if err != nil {
			span.SetAttributes(attribute.String("gemini.error_message", err.Error()))
			return nil, err
		}

		gc.tokenCounter.RecordUsage(tokenUsage(resp), 1)
		return resp, nil
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
			return "I'm experiencing high demand right now. Please try again in a moment.", nil
		}
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return "", err
	}

	answer := responseText(result.(*genai.GenerateContentResponse))
	if answer == "" {
		return "", errors.New("empty response from model")
	}
	span.SetAttributes(attribute.Bool("gemini.success", true))
	return answer, nil
}

func buildDealDocPrompt(question string, chunks []models.RetrievedChunk, history []models.ChatTurn) string {
	var b strings.Builder
	b.WriteString("You are an analyst assistant for commercial real estate deal documents. ")
	b.WriteString("Answer using only the excerpts below. Cite page numbers when you use them. ")
	b.WriteString("If the excerpts do not contain the answer, say so.\n\n")

	if len(chunks) > 0 {
		b.WriteString("Document excerpts:\n")
		for i, chunk := range chunks {
			if chunk.PageNumber > 0 {
				fmt.Fprintf(&b, "[%d] (page %d) %s\n\n", i+1, chunk.PageNumber, chunk.Content)
			} else {
				fmt.Fprintf(&b, "[%d] %s\n\n", i+1, chunk.Content)
			}
		}
	}

	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, turn := range history {
			fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Question: %s", question)
	return b.String()
}

func (tc *TokenCounter) CanConsume(tokens, requests int) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	now := time.Now()
	if now.Sub(tc.lastMinuteReset) >= time.Minute {
		tc.minuteTokens = 0
		tc.minuteRequests = 0
		tc.lastMinuteReset = now
	}
	if now.Sub(tc.lastDayReset) >= 24*time.Hour {
		tc.dailyTokens = 0
		tc.dailyRequests = 0
		tc.lastDayReset = now
	}

	if tc.minuteRequests+requests > tc.limits.RPM {
		return false
	}
	if tc.minuteTokens+tokens > tc.limits.TPM {
		return false
	}
	if tc.dailyRequests+requests > tc.limits.RPD {
		return false
	}
	return true
}

func (tc *TokenCounter) RecordUsage(tokens, requests int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.minuteTokens += tokens
	tc.minuteRequests += requests
	tc.dailyTokens += tokens
	tc.dailyRequests += requests
}

func tokenUsage(resp *genai.GenerateContentResponse) int {
	if resp.UsageMetadata != nil {
		return int(resp.UsageMetadata.TotalTokenCount)
	}
	estimated := len(responseText(resp)) / 4
	if estimated < 1 {
		estimated = 1
	}
	return estimated
}

func responseText(resp *genai.GenerateContentResponse) string {
	var b strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}
	return b.String()
}

func (gc *GeminiClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}
