package tracing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	EXPORTER_NONE      = "none"
	EXPORTER_STDOUT    = "stdout"
	EXPORTER_OTLP_HTTP = "otlp-http"
	EXPORTER_OTLP_GRPC = "otlp-grpc"

	tracerName = "github.com/eval-hub/sim-hub"
)

type TracingConfig struct {
	Exporter    string  `mapstructure:"exporter,omitempty"`
	Endpoint    string  `mapstructure:"endpoint,omitempty"`
	Insecure    bool    `mapstructure:"insecure,omitempty"`
	ServiceName string  `mapstructure:"service_name,omitempty"`
	SampleRate  float64 `mapstructure:"sample_rate,omitempty"`
}

type ShutdownFunc func(ctx context.Context) error

// Setup installs the global tracer provider. With no config or the "none" exporter the
// global no-op provider is left in place and the returned shutdown does nothing.
func Setup(ctx context.Context, conf *TracingConfig, version string, logger *slog.Logger) (ShutdownFunc, error) {
	noop := func(context.Context) error { return nil }
	if conf == nil || conf.Exporter == "" || conf.Exporter == EXPORTER_NONE {
		logger.Info("Tracing disabled")
		return noop, nil
	}

	var exporter sdktrace.SpanExporter
	var err error
	switch conf.Exporter {
	case EXPORTER_STDOUT:
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case EXPORTER_OTLP_HTTP:
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(stripScheme(conf.Endpoint))}
		if conf.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		exporter, err = otlptracehttp.New(ctx, opts...)
	case EXPORTER_OTLP_GRPC:
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(stripScheme(conf.Endpoint))}
		if conf.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	default:
		return noop, fmt.Errorf("unsupported trace exporter: %s", conf.Exporter)
	}
	if err != nil {
		return noop, fmt.Errorf("creating trace exporter: %w", err)
	}

	serviceName := conf.ServiceName
	if serviceName == "" {
		serviceName = "sim-hub"
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
	)

	var sampler sdktrace.Sampler
	switch {
	case conf.SampleRate <= 0 || conf.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(conf.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sampler)),
	)
	otel.SetTracerProvider(tp)
	logger.Info("Tracing enabled", "exporter", conf.Exporter, "endpoint", conf.Endpoint)

	return tp.Shutdown, nil
}

// Tracer returns the tracer of the service from the global provider
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// stripScheme removes http:// or https:// from an endpoint URL,
// the OTLP exporters expect host:port.
func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	return endpoint
}
