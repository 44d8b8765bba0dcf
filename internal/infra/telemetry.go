package infra

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// InitTracer installs a stdout tracer provider when enabled. The returned
// shutdown func is always safe to call.
func InitTracer(ctx context.Context, serviceName string, enabled bool, logger zerolog.Logger) func(context.Context) error {
	noop := func(context.Context) error { return nil }
	if !enabled {
		return noop
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		logger.Warn().Err(err).Msg("telemetry exporter init failed")
		return noop
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
		)),
	)

	otel.SetTracerProvider(provider)
	logger.Info().Str("service", serviceName).Msg("tracing enabled")

	return provider.Shutdown
}
