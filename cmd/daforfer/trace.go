package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"daforfer/internal/logging"
	"daforfer/internal/tracing"
)

// cmdMiddlewareTracingSpan starts a span that ends when the action returns
func cmdMiddlewareTracingSpan(f cli.ActionFunc) cli.ActionFunc {
	return func(c *cli.Context) (err error) {
		ctx, span := tracing.Start(c.Context, Module)
		defer func() { tracing.End(span, err) }()
		c.Context = ctx
		return f(c)
	}
}

// cmdMiddlewareTracingConfig configures the tracing system before executing the action
func cmdMiddlewareTracingConfig(f cli.ActionFunc) cli.ActionFunc {
	return func(c *cli.Context) error {
		tracerProvider, err := newTracingProvider(c)
		if err != nil {
			return fmt.Errorf("could not initialize tracing: %w", err)
		}
		if tracerProvider == nil {
			c.Context = tracing.SetTracer(c.Context, nil)
			return f(c)
		}
		ctx := c.Context
		defer func() {
			if err := tracerProvider.Shutdown(ctx); err != nil {
				logging.Ctx(ctx).Debug("trace", "tracing shutdown error: %s", err)
			}
		}()

		c.Context = tracing.SetTracer(ctx, tracerProvider.Tracer(Module))
		return f(c)
	}
}

// newResource identifies the process in exported spans
func newResource(version string) (*resource.Resource, error) {
	return resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", Module),
			attribute.String("service.version", version),
		),
	)
}

// newTracingProvider creates a tracer provider from CLI flags. It returns nil
// when tracing is not enabled.
func newTracingProvider(c *cli.Context) (_ *sdktrace.TracerProvider, retErr error) {
	fileExporter, err := newFileSpanExporter(c.Context, c.String("trace.file"))
	if err != nil {
		return nil, err
	}
	if fileExporter == nil {
		return nil, nil
	}
	defer func() {
		if retErr != nil {
			fileExporter.Shutdown(c.Context)
		}
	}()

	res, err := newResource(c.App.Version)
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSyncer(fileExporter),
	), nil
}

// fileSpanExporter calls Close() during Shutdown, simplifying the
// implementation for file handling
type fileSpanExporter struct {
	sdktrace.SpanExporter
	io.Closer
}

// Shutdown flushes the exporter and closes the file
func (e *fileSpanExporter) Shutdown(ctx context.Context) error {
	if e == nil {
		return nil
	}
	defer e.Closer.Close() // consume file close errors
	if err := e.SpanExporter.Shutdown(ctx); err != nil {
		return fmt.Errorf("tracing shutdown failed: %w", err)
	}
	return nil
}

// newFileSpanExporter creates or truncates the named file and uses the file with a console exporter.
func newFileSpanExporter(ctx context.Context, name string) (*fileSpanExporter, error) {
	if name == "" {
		return nil, nil
	}
	logging.Ctx(ctx).Debug("trace", "trace file path: %s", name)
	f, err := os.Create(name)
	if err != nil {
		return nil, err
	}

	exp, err := stdouttrace.New(
		stdouttrace.WithWriter(f),
		stdouttrace.WithPrettyPrint(),
		stdouttrace.WithoutTimestamps(),
	)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileSpanExporter{exp, f}, nil
}
