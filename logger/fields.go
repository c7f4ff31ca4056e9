package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across dkg.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Identity and context
	FieldRunID     = "run_id"
	FieldComponent = "component"

	// Datasets
	FieldDataset      = "dataset"
	FieldDistribution = "distribution"
	FieldMediaType    = "media_type"
	FieldAnalyzer     = "analyzer"
	FieldWriter       = "writer"
	FieldEndpoint     = "endpoint"

	// Tasks
	FieldTaskID  = "task_id"
	FieldTask    = "task"
	FieldCommand = "command"
	FieldOutput  = "output"
	FieldImage   = "image"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldAttempt    = "attempt"

	// Errors
	FieldError = "error"

	// Counts and sizes
	FieldCount = "count"
	FieldSize  = "size"

	// Files and network
	FieldFile = "file"
	FieldURL  = "url"
	FieldPort = "port"
)

// Context keys for propagating logging context
type contextKey string

const (
	runIDKey     contextKey = "logger_run_id"
	datasetKey   contextKey = "logger_dataset"
	componentKey contextKey = "logger_component"
)

// WithRunID adds a pipeline run ID to the context for logging
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// WithDataset adds the IRI of the dataset being processed to the context
func WithDataset(ctx context.Context, iri string) context.Context {
	return context.WithValue(ctx, datasetKey, iri)
}

// WithComponent adds a component name to the context for logging
func WithComponent(ctx context.Context, component string) context.Context {
	return context.WithValue(ctx, componentKey, component)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if runID, ok := ctx.Value(runIDKey).(string); ok && runID != "" {
		fields = append(fields, FieldRunID, runID)
	}
	if iri, ok := ctx.Value(datasetKey).(string); ok && iri != "" {
		fields = append(fields, FieldDataset, iri)
	}
	if component, ok := ctx.Value(componentKey).(string); ok && component != "" {
		fields = append(fields, FieldComponent, component)
	}

	return fields
}

// FromContext returns base enriched with the fields carried by ctx.
// A nil base falls back to the global Logger.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = Logger
	}
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	type QleverImporter struct {
//	    logger *zap.SugaredLogger
//	}
//
//	func NewQleverImporter() *QleverImporter {
//	    return &QleverImporter{
//	        logger: logger.ComponentLogger("importer.qlever"),
//	    }
//	}
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
