package config

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/enduroplan/fueltrace-service-go/version"
)

// Telemetry holds the configured OpenTelemetry providers.
// Without a configured endpoint the stdout exporters are used.
type Telemetry struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

func (t *Telemetry) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if t.tracerProvider != nil {
		//nolint:errcheck // by design
		t.tracerProvider.Shutdown(ctx)
	}
	if t.meterProvider != nil {
		//nolint:errcheck // by design
		t.meterProvider.Shutdown(ctx)
	}
}

func SetupTelemetry(ctx context.Context) (*Telemetry, error) {
	res, err := telemetryResource()
	if err != nil {
		return nil, err
	}
	tp, err := setupTraceProvider(ctx, res)
	if err != nil {
		return nil, err
	}
	mp, err := setupMeterProvider(ctx, res)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	return &Telemetry{tracerProvider: tp, meterProvider: mp}, nil
}

func telemetryResource() (*resource.Resource, error) {
	return resource.Merge(resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL,
			semconv.ServiceName("fueltrace-service"),
			semconv.ServiceVersion(version.Version),
		))
}

//nolint:whitespace // editor/linter issue
func setupTraceProvider(ctx context.Context, res *resource.Resource) (
	*sdktrace.TracerProvider, error,
) {
	var exp sdktrace.SpanExporter
	var err error
	if TelemetryEndpoint != "" {
		exp, err = otlptracegrpc.New(ctx,
			otlptracegrpc.WithEndpoint(TelemetryEndpoint),
			otlptracegrpc.WithInsecure())
	} else {
		exp, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	), nil
}

//nolint:whitespace // editor/linter issue
func setupMeterProvider(ctx context.Context, res *resource.Resource) (
	*sdkmetric.MeterProvider, error,
) {
	var exp sdkmetric.Exporter
	var err error
	if TelemetryEndpoint != "" {
		exp, err = otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(TelemetryEndpoint),
			otlpmetricgrpc.WithInsecure())
	} else {
		exp, err = stdoutmetric.New()
	}
	if err != nil {
		return nil, err
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(time.Minute))),
		sdkmetric.WithResource(res),
	), nil
}
