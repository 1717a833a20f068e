package main

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/amazo-world/amazo-bot/config"
)

// setupTracing installs the global tracer provider. Spans go to an OTLP/HTTP
// endpoint configured by the OTEL_EXPORTER_OTLP_* variables, or to stdout.
func setupTracing(ctx context.Context, cfg *config.Config) (*sdktrace.TracerProvider, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch cfg.Tracing.Exporter {
	case "stdout":
		exporter, err = stdouttrace.New(
			stdouttrace.WithWriter(os.Stdout),
			stdouttrace.WithPrettyPrint(),
		)
	default:
		exporter, err = otlptracehttp.New(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s trace exporter: %w", cfg.Tracing.Exporter, err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", programName),
		attribute.String("service.version", cfg.App.Version),
		attribute.String("deployment.environment", string(cfg.App.Environment)),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.Tracing.SampleRatio))),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}
