package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// EngineMetrics defines the interface for recording encryption engine metrics.
// Implementations track operation counts, durations, and key cache activity.
type EngineMetrics interface {
	// RecordOperation records an engine operation with its status.
	// Operation examples: "encrypt", "decrypt", "rotate", "search_hash"
	// Status examples: "success", "error"
	RecordOperation(ctx context.Context, operation, status string)

	// RecordDuration records the duration of an engine operation with its status.
	// Duration is recorded in seconds as a histogram for percentile calculations.
	RecordDuration(ctx context.Context, operation string, duration time.Duration, status string)

	// RecordCacheAccess records a key cache lookup outcome ("hit" or "miss").
	RecordCacheAccess(ctx context.Context, outcome string)
}

// engineMetrics implements EngineMetrics using OpenTelemetry metrics.
type engineMetrics struct {
	operationCounter metric.Int64Counter
	durationHisto    metric.Float64Histogram
	cacheCounter     metric.Int64Counter
}

// NewEngineMetrics creates an EngineMetrics implementation using the provided
// meter provider. The namespace parameter is used as a prefix for all metric
// names (e.g., "fieldcrypt"). Returns error if meters cannot be initialized.
func NewEngineMetrics(meterProvider metric.MeterProvider, namespace string) (EngineMetrics, error) {
	meter := meterProvider.Meter(namespace)

	operationCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_operations_total", namespace),
		metric.WithDescription("Total number of engine operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create operation counter: %w", err)
	}

	durationHisto, err := meter.Float64Histogram(
		fmt.Sprintf("%s_operation_duration_seconds", namespace),
		metric.WithDescription("Duration of engine operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	cacheCounter, err := meter.Int64Counter(
		fmt.Sprintf("%s_cache_accesses_total", namespace),
		metric.WithDescription("Total number of key cache lookups"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache counter: %w", err)
	}

	return &engineMetrics{
		operationCounter: operationCounter,
		durationHisto:    durationHisto,
		cacheCounter:     cacheCounter,
	}, nil
}

// RecordOperation increments the operation counter with operation and status labels.
func (e *engineMetrics) RecordOperation(ctx context.Context, operation, status string) {
	e.operationCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("status", status),
		),
	)
}

// RecordDuration records the operation duration in seconds with operation and status labels.
func (e *engineMetrics) RecordDuration(
	ctx context.Context,
	operation string,
	duration time.Duration,
	status string,
) {
	e.durationHisto.Record(ctx, duration.Seconds(),
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("status", status),
		),
	)
}

// RecordCacheAccess increments the cache counter with the lookup outcome label.
func (e *engineMetrics) RecordCacheAccess(ctx context.Context, outcome string) {
	e.cacheCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("outcome", outcome),
		),
	)
}

// NoOpEngineMetrics is a no-op implementation of EngineMetrics for when metrics are disabled.
type NoOpEngineMetrics struct{}

// NewNoOpEngineMetrics creates a no-op EngineMetrics implementation.
func NewNoOpEngineMetrics() EngineMetrics {
	return &NoOpEngineMetrics{}
}

// RecordOperation does nothing when metrics are disabled.
func (n *NoOpEngineMetrics) RecordOperation(ctx context.Context, operation, status string) {
	// No-op
}

// RecordDuration does nothing when metrics are disabled.
func (n *NoOpEngineMetrics) RecordDuration(
	ctx context.Context,
	operation string,
	duration time.Duration,
	status string,
) {
	// No-op
}

// RecordCacheAccess does nothing when metrics are disabled.
func (n *NoOpEngineMetrics) RecordCacheAccess(ctx context.Context, outcome string) {
	// No-op
}
