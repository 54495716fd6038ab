// Package tracing sets up the OpenTelemetry tracer provider.
package tracing

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

// ShutdownFunc flushes and stops the tracer provider
type ShutdownFunc func(context.Context) error

// Options for Init
type Options struct {
	ServiceName string
	// Writer receives exported spans. Defaults to stdout.
	Writer io.Writer
	// PrettyPrint indents exported spans
	PrettyPrint bool
	Logger      *slog.Logger
}

// Init installs a global tracer provider that exports spans with the stdout
// exporter. The returned function must be called on shutdown.
func Init(options Options) (ShutdownFunc, error) {
	if options.Writer == nil {
		options.Writer = os.Stdout
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	exporter, err := newExporter(options.Writer, options.PrettyPrint)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(options.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := trace.NewTracerProvider(
		trace.WithBatcher(exporter),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Info("OpenTelemetry tracer initialized", "component", "tracing", "service", options.ServiceName)
	return tp.Shutdown, nil
}

func newExporter(w io.Writer, pretty bool) (trace.SpanExporter, error) {
	opts := []stdouttrace.Option{stdouttrace.WithWriter(w)}
	if pretty {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	return stdouttrace.New(opts...)
}
