// Package telemetry wires OpenTelemetry tracing and metrics across the
// node using per-package otel.Tracer/otel.Meter globals: those globals
// bind against the global delegating provider and are no-ops until Init
// runs, so packages can hold a tracer at init time before main ever calls
// Init.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/aquadoggo-go/aquadoggo"

var (
	tracer = otel.Tracer(instrumentationName)
	meter  = otel.Meter(instrumentationName)

	instruments struct {
		operationsPublished metric.Int64Counter
		tasksDeadLettered   metric.Int64Counter
		replicationSessions metric.Int64Counter
	}
)

func init() {
	var err error
	instruments.operationsPublished, err = meter.Int64Counter("aquadoggo.operations_published",
		metric.WithDescription("Operations accepted by the publish pipeline"),
		metric.WithUnit("{operation}"),
	)
	logInstrumentError(err)

	instruments.tasksDeadLettered, err = meter.Int64Counter("aquadoggo.task_dead_letter",
		metric.WithDescription("Materializer tasks dropped after exhausting retries"),
		metric.WithUnit("{task}"),
	)
	logInstrumentError(err)

	instruments.replicationSessions, err = meter.Int64Counter("aquadoggo.replication_sessions_opened",
		metric.WithDescription("Replication sessions opened, by role"),
		metric.WithUnit("{session}"),
	)
	logInstrumentError(err)
}

func logInstrumentError(err error) {
	if err != nil {
		fmt.Printf("telemetry: register instrument: %v\n", err)
	}
}

// Shutdown flushes and releases the providers Init installed. The
// zero-value Shutdown (returned when Init was never called) is a no-op.
type Shutdown func(context.Context) error

// Init installs the global tracer and meter providers for the given
// exporter kind ("stdout" or "" otel_exporter
// option). An empty kind leaves the no-op global providers in place, so
// every otel.Tracer/otel.Meter call above remains safe to make
// unconditionally.
func Init(exporterKind string) (Shutdown, error) {
	if exporterKind == "" {
		return func(context.Context) error { return nil }, nil
	}
	if exporterKind != "stdout" {
		return nil, fmt.Errorf("telemetry: unknown otel_exporter %q", exporterKind)
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("telemetry: new trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter))
	otel.SetTracerProvider(tp)

	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("telemetry: new metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)))
	otel.SetMeterProvider(mp)

	return func(ctx context.Context) error {
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("telemetry: shutdown tracer provider: %w", err)
		}
		if err := mp.Shutdown(ctx); err != nil {
			return fmt.Errorf("telemetry: shutdown meter provider: %w", err)
		}
		return nil
	}, nil
}

// StartSpan starts a span named name under this package's tracer, the
// entry point every instrumented component below calls through rather
// than holding its own otel.Tracer handle.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordOperationPublished increments the operations_published counter.
func RecordOperationPublished(ctx context.Context, schemaID string) {
	instruments.operationsPublished.Add(ctx, 1, metric.WithAttributes(attribute.String("schema_id", schemaID)))
}

// RecordTaskDeadLetter increments the task_dead_letter counter.
func RecordTaskDeadLetter(ctx context.Context, taskName string) {
	instruments.tasksDeadLettered.Add(ctx, 1, metric.WithAttributes(attribute.String("task_name", taskName)))
}

// RecordReplicationSessionOpened increments the replication session counter.
func RecordReplicationSessionOpened(ctx context.Context, role string) {
	instruments.replicationSessions.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
}
