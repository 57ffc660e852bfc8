// Package otelsetup provides OpenTelemetry distributed tracing for the XDR runtime.
package otelsetup

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/xdr-run/xdr"

// Init initializes the OpenTelemetry tracer provider used to trace the
// ChaosCheck/Debit/Forward stages of the request pipeline.
// If otlpEndpoint is empty, a no-op provider is used: the pipeline still
// calls StartSpan on every request, but spans go nowhere.
func Init(ctx context.Context, otlpEndpoint string, logger *slog.Logger) (func(context.Context) error, error) {
	if otlpEndpoint == "" {
		logger.Info("tracing disabled (no OTEL_EXPORTER_OTLP_ENDPOINT set)")
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(otlpEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("xdr"),
			semconv.ServiceVersion("0.1.0"),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	logger.Info("tracing enabled", "endpoint", otlpEndpoint)
	return tp.Shutdown, nil
}

// StartSpan starts a new span with the given name and returns the updated context and span.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.Tracer(tracerName)
	ctx, span := tracer.Start(ctx, name)
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	return ctx, span
}

// Attribute helpers for consistent span decoration across pipeline stages.

func AgentID(id string) attribute.KeyValue {
	return attribute.String("xdr.agent_id", id)
}

func Amount(amount string) attribute.KeyValue {
	return attribute.String("xdr.amount", amount)
}

func UpstreamHost(host string) attribute.KeyValue {
	return attribute.String("xdr.upstream_host", host)
}

func ChaosDecision(kind string) attribute.KeyValue {
	return attribute.String("xdr.chaos_decision", kind)
}

func TxHash(hash string) attribute.KeyValue {
	return attribute.String("xdr.tx_hash", hash)
}
