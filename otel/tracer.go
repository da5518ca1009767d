package otel

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// TracerConfig configures OTLP/HTTP span export.
type TracerConfig struct {
	// Endpoint is host:port or a full URL.
	Endpoint    string
	Insecure    bool
	ServiceName string
}

// NewTracerProvider builds a batching tracer provider that exports to an
// OTLP/HTTP collector. The caller owns Shutdown.
func NewTracerProvider(ctx context.Context, cfg TracerConfig) (*sdktrace.TracerProvider, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("otel: otlp endpoint is required")
	}

	var opts []otlptracehttp.Option
	if strings.Contains(endpoint, "://") {
		opts = append(opts, otlptracehttp.WithEndpointURL(endpoint))
	} else {
		opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "kit"
	}
	res := resource.NewSchemaless(attribute.String("service.name", serviceName))

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	), nil
}
