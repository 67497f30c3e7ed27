// Package tracing sets up OpenTelemetry tracing for device operations.
package tracing

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// ServiceName identifies spans emitted by this tool
const ServiceName = "panos-ike"

// Config holds tracing configuration
type Config struct {
	Endpoint string // host:port of the OTLP endpoint; empty disables tracing
	URLPath  string // path for the OTLP traces endpoint
	Insecure bool   // plain HTTP to the collector
	Version  string
}

type otelErrorHandler struct{}

func (otelErrorHandler) Handle(err error) {
	log.Warn().Err(err).Msg("otel error")
}

// Init installs a global tracer provider exporting over OTLP/HTTP.
// With no endpoint configured it is a no-op and the returned shutdown does nothing.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if cfg.Endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	otel.SetErrorHandler(otelErrorHandler{})

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
	if cfg.URLPath != "" {
		opts = append(opts, otlptracehttp.WithURLPath(cfg.URLPath))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(cfg.Version),
		),
	)
	if err != nil {
		return nil, err
	}

	// A CLI run is short; export synchronously so nothing is lost at exit.
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	log.Debug().Str("endpoint", cfg.Endpoint).Str("url_path", cfg.URLPath).Msg("tracing enabled")

	return tp.Shutdown, nil
}

// Tracer returns the panos-ike tracer from the global provider
func Tracer() trace.Tracer {
	return otel.Tracer(ServiceName)
}
