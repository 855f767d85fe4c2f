// OpenTelemetry tracing support for coordination observability.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps OpenTelemetry tracing with coordination-specific helpers.
type Tracer struct {
	tracer trace.Tracer
}

var (
	globalTracer *Tracer
	tracerMu     sync.RWMutex
)

// SetGlobalTracer sets the global tracer instance.
func SetGlobalTracer(t *Tracer) {
	tracerMu.Lock()
	defer tracerMu.Unlock()
	globalTracer = t
}

// GetTracer returns the global tracer, or a no-op tracer if not set.
func GetTracer() *Tracer {
	tracerMu.RLock()
	defer tracerMu.RUnlock()
	if globalTracer == nil {
		return &Tracer{tracer: trace.NewNoopTracerProvider().Tracer("")}
	}
	return globalTracer
}

// NewTracer creates a new tracer with the given name.
func NewTracer(name string) *Tracer {
	return &Tracer{
		tracer: otel.Tracer(name),
	}
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// --- Dependency Spans ---

// DependencySpanOptions contains options for dependency derivation spans.
type DependencySpanOptions struct {
	DependencyID string
	Type         string
	Status       string
	Impact       string
}

// StartDependencySpan starts a span for a dependency status derivation.
func (t *Tracer) StartDependencySpan(ctx context.Context, depID string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "dependency.derive", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String("dependency.id", depID))
	return ctx, span
}

// EndDependencySpan ends a dependency span with attributes.
func (t *Tracer) EndDependencySpan(span trace.Span, opts DependencySpanOptions, err error) {
	attrs := []attribute.KeyValue{
		attribute.String("dependency.type", opts.Type),
		attribute.String("dependency.status", opts.Status),
	}
	if opts.Impact != "" {
		attrs = append(attrs, attribute.String("dependency.impact", opts.Impact))
	}
	span.SetAttributes(attrs...)
	endSpan(span, err)
}

// --- Rebalance Spans ---

// RebalanceSpanOptions contains options for rebalance pass spans.
type RebalanceSpanOptions struct {
	ResourceID  string
	Before      float64
	After       float64
	Allocations int
}

// StartRebalanceSpan starts a span for a resource rebalance pass.
func (t *Tracer) StartRebalanceSpan(ctx context.Context, resourceID string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "resource.rebalance", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String("resource.id", resourceID))
	return ctx, span
}

// EndRebalanceSpan ends a rebalance span with attributes.
func (t *Tracer) EndRebalanceSpan(span trace.Span, opts RebalanceSpanOptions, err error) {
	span.SetAttributes(
		attribute.Float64("resource.sum_before", opts.Before),
		attribute.Float64("resource.sum_after", opts.After),
		attribute.Int("resource.allocations", opts.Allocations),
	)
	endSpan(span, err)
}

// --- Sync Point Spans ---

// SyncSpanOptions contains options for synchronization check spans.
type SyncSpanOptions struct {
	PointID   string
	Status    string
	Completed int
	Total     int
}

// StartSyncSpan starts a span for a synchronization point check.
func (t *Tracer) StartSyncSpan(ctx context.Context, pointID string) (context.Context, trace.Span) {
	ctx, span := t.tracer.Start(ctx, "sync_point.check", trace.WithSpanKind(trace.SpanKindInternal))
	span.SetAttributes(attribute.String("sync_point.id", pointID))
	return ctx, span
}

// EndSyncSpan ends a sync check span with attributes.
func (t *Tracer) EndSyncSpan(span trace.Span, opts SyncSpanOptions, err error) {
	span.SetAttributes(
		attribute.String("sync_point.status", opts.Status),
		attribute.Int("sync_point.completed", opts.Completed),
		attribute.Int("sync_point.total", opts.Total),
	)
	endSpan(span, err)
}

// --- Context Spans ---

// ContextSpanOptions contains options for shared context mutation spans.
type ContextSpanOptions struct {
	ContextID  string
	ChangeType string
	Version    int
	Conflict   bool
}

// StartContextSpan starts a span for a shared context mutation.
func (t *Tracer) StartContextSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "context."+name, trace.WithSpanKind(trace.SpanKindInternal))
}

// EndContextSpan ends a context span with attributes.
func (t *Tracer) EndContextSpan(span trace.Span, opts ContextSpanOptions, err error) {
	span.SetAttributes(
		attribute.String("context.id", opts.ContextID),
		attribute.String("context.change_type", opts.ChangeType),
		attribute.Int("context.version", opts.Version),
		attribute.Bool("context.conflict", opts.Conflict),
	)
	endSpan(span, err)
}

// endSpan records the error status and ends the span.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// --- Context Propagation ---

// InjectContext injects trace context into a carrier for cross-process propagation.
func InjectContext(ctx context.Context, carrier propagation.TextMapCarrier) {
	otel.GetTextMapPropagator().Inject(ctx, carrier)
}

// ExtractContext extracts trace context from a carrier.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}

// MapCarrier is a simple map-based TextMapCarrier for context propagation.
type MapCarrier map[string]string

func (c MapCarrier) Get(key string) string {
	return c[key]
}

func (c MapCarrier) Set(key, value string) {
	c[key] = value
}

func (c MapCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}
