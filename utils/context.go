package utils

import (
	"context"
	"time"
)

const (
	// DefaultTimeout bounds a single database round trip.
	DefaultTimeout = 10 * time.Second

	// ExportTimeout bounds workbook generation, which scans a whole
	// conversation before writing rows.
	ExportTimeout = 30 * time.Second
)

// WithTimeout derives a context with the default operation deadline.
func WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultTimeout)
}

// WithExportTimeout derives a context sized for conversation exports.
func WithExportTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, ExportTimeout)
}
