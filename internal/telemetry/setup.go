// Package telemetry configures OpenTelemetry tracing for pipeline runs.
package telemetry

import (
	"context"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName is reported as the service.name resource attribute.
const ServiceName = "gridci"

// Shutdown flushes pending spans and stops the provider.
type Shutdown func(context.Context) error

// InitTracer installs a tracer provider that writes spans as JSON to w and
// returns it with its shutdown function. With global set, the provider also
// becomes the otel global.
func InitTracer(w io.Writer, global bool) (trace.TracerProvider, Shutdown, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(ServiceName),
		)),
	)
	if global {
		otel.SetTracerProvider(provider)
	}
	return provider, provider.Shutdown, nil
}
