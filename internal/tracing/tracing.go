// Package tracing carries an OpenTelemetry tracer in a context.Context
// instead of relying on the global provider.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Span attribute keys
const (
	AttrKeyArtifactName = "daforfer.artifact.name"
	AttrKeyArtifactKind = "daforfer.artifact.kind"
	AttrKeyOutputPath   = "daforfer.export.path"
)

type ctxKey struct{}

// TracerFromCtx returns the tracer set for ctx, or a no-op tracer
func TracerFromCtx(ctx context.Context) trace.Tracer {
	tracer, ok := ctx.Value(ctxKey{}).(trace.Tracer)
	if !ok {
		return noop.NewTracerProvider().Tracer("")
	}
	return tracer
}

// SetTracer returns a context carrying tracer. A nil tracer stores a no-op tracer.
func SetTracer(ctx context.Context, tracer trace.Tracer) context.Context {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	if existing, ok := ctx.Value(ctxKey{}).(trace.Tracer); ok && existing == tracer {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, tracer)
}

// Start creates a span from the context tracer
func Start(ctx context.Context, spanName string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return TracerFromCtx(ctx).Start(ctx, spanName, opts...)
}

// Artifact returns span attributes naming an artifact
func Artifact(kind, name string) trace.SpanStartOption {
	return trace.WithAttributes(
		attribute.String(AttrKeyArtifactKind, kind),
		attribute.String(AttrKeyArtifactName, name),
	)
}

// End records err on span, if any, and ends it
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Export returns span attributes naming an export destination
func Export(path string) trace.SpanStartOption {
	return trace.WithAttributes(attribute.String(AttrKeyOutputPath, path))
}
