package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	TokensUsed          metric.Int64Counter
	PDFProcessingTime   metric.Float64Histogram
	ContextCacheOps     metric.Int64Counter
	RetrievalStrategies metric.Int64Counter
	DatabaseOperations  metric.Int64Counter
}

// InitMetrics registers the platform's instruments on the global meter.
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("cre-chatbot-platform")

	var err error
	counter := func(name, desc string) metric.Int64Counter {
		if err != nil {
			return nil
		}
		var c metric.Int64Counter
		c, err = meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	histogram := func(name, desc string) metric.Float64Histogram {
		if err != nil {
			return nil
		}
		var h metric.Float64Histogram
		h, err = meter.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"))
		return h
	}

	m := &Metrics{
		RequestCounter:      counter("http.requests.total", "Total HTTP requests"),
		RequestDuration:     histogram("http.request.duration", "HTTP request duration in seconds"),
		TokensUsed:          counter("gemini.tokens.used", "Total Gemini tokens used"),
		PDFProcessingTime:   histogram("pdf.processing.duration", "PDF processing duration in seconds"),
		ContextCacheOps:     counter("context_cache.operations.total", "Context cache reads and writes by outcome"),
		RetrievalStrategies: counter("retrieval.strategy.hits", "Which retrieval strategy produced results"),
		DatabaseOperations:  counter("database.operations.total", "Total database operations"),
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordTokensUsed records Gemini token usage
func (m *Metrics) RecordTokensUsed(tokens int64, model string) {
	attrs := []attribute.KeyValue{
		attribute.String("gemini.model", model),
		attribute.String("service", "gemini"),
	}

	m.TokensUsed.Add(context.Background(), tokens, metric.WithAttributes(attrs...))
}

// RecordPDFProcessing records PDF processing metrics
func (m *Metrics) RecordPDFProcessing(duration float64, status string) {
	attrs := []attribute.KeyValue{
		attribute.String("pdf.status", status),
		attribute.String("service", "pdf_processor"),
	}

	m.PDFProcessingTime.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordContextCacheOp records a context cache read or write and its outcome
func (m *Metrics) RecordContextCacheOp(operation, outcome string) {
	attrs := []attribute.KeyValue{
		attribute.String("cache.operation", operation),
		attribute.String("cache.outcome", outcome),
	}

	m.ContextCacheOps.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordRetrievalStrategy records which fallback layer served a retrieval
func (m *Metrics) RecordRetrievalStrategy(strategy string, results int) {
	attrs := []attribute.KeyValue{
		attribute.String("retrieval.strategy", strategy),
		attribute.Bool("retrieval.nonempty", results > 0),
	}

	m.RetrievalStrategies.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}

// RecordDatabaseOperation records database operation metrics
func (m *Metrics) RecordDatabaseOperation(operation, collection string, success bool) {
	attrs := []attribute.KeyValue{
		attribute.String("db.operation", operation),
		attribute.String("db.collection", collection),
		attribute.Bool("db.success", success),
	}

	m.DatabaseOperations.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
