package observability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuelReschke/EasyBudget/internal/pkg/env"
)

const (
	ServiceName    = "easybudget"
	ServiceVersion = "1.0.0"
)

// Tracer returns the named tracer from the global provider. Before
// SetupTracing runs this is the no-op tracer.
func Tracer(name string) trace.Tracer {
	return otel.Tracer("github.com/ManuelReschke/EasyBudget/" + name)
}

// SetupTracing configures the global tracer provider with an OTLP/HTTP
// exporter. When OTEL_EXPORTER_OTLP_ENDPOINT is empty tracing stays disabled
// and the returned shutdown is a no-op.
func SetupTracing(ctx context.Context) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error

	shutdown = func(ctx context.Context) error {
		var errs error
		for i := len(shutdownFuncs) - 1; i >= 0; i-- {
			errs = errors.Join(errs, shutdownFuncs[i](ctx))
		}
		shutdownFuncs = nil
		return errs
	}

	endpoint := env.GetEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	if endpoint == "" {
		log.Info("[Tracing] OTEL_EXPORTER_OTLP_ENDPOINT not set, tracing disabled")
		return shutdown, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(ServiceVersion),
			semconv.DeploymentEnvironment(env.GetEnv("APP_ENV", "dev")),
		),
	)
	if err != nil {
		return shutdown, fmt.Errorf("failed to create resource: %w", err)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
	if !env.GetEnvBool("OTEL_EXPORTER_OTLP_SECURE", false) {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return shutdown, fmt.Errorf("failed to setup OTLP trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter,
			sdktrace.WithMaxQueueSize(2048),
			sdktrace.WithBatchTimeout(5*time.Second),
		),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	shutdownFuncs = append(shutdownFuncs, tp.Shutdown)

	log.Infof("[Tracing] Exporting spans to %s", endpoint)
	return shutdown, nil
}
