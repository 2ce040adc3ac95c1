// Package observability настраивает OpenTelemetry-трассировку сервиса.
package observability

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.opentelemetry.io/otel/trace"
)

// TracerName — имя инструментирующей библиотеки для всех спанов сервиса.
const TracerName = "github.com/vladislavdragonenkov/orders"

// TracingConfig описывает параметры экспорта трасс.
type TracingConfig struct {
	ServiceName  string
	Version      string
	Environment  string
	OTLPEndpoint string
	OTLPInsecure bool
	Stdout       bool
	SampleRatio  float64
}

// Enabled сообщает, настроен ли хотя бы один экспортёр.
func (c TracingConfig) Enabled() bool {
	return strings.TrimSpace(c.OTLPEndpoint) != "" || c.Stdout
}

// InitTracing устанавливает глобальный TracerProvider и возвращает функцию остановки.
// Без экспортёра спаны создаются, но никуда не отправляются.
func InitTracing(ctx context.Context, cfg TracingConfig, logger *log.Entry) (func(context.Context) error, error) {
	if logger == nil {
		logger = log.WithField("component", "tracing")
	}
	if !cfg.Enabled() {
		logger.Debug("tracing exporter is not configured")
		return func(context.Context) error { return nil }, nil
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "order-service"
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(cfg.Version),
		attribute.String("deployment.environment", cfg.Environment),
	))
	if err != nil {
		logger.WithError(err).Warn("otel resource init failed, continuing with partial resource")
	}

	exporter, err := buildExporter(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build trace exporter: %w", err)
	}

	ratio := cfg.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.WithFields(log.Fields{
		"service":  serviceName,
		"endpoint": cfg.OTLPEndpoint,
		"stdout":   cfg.Stdout,
	}).Info("otel tracing initialized")

	return tp.Shutdown, nil
}

func buildExporter(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	if endpoint := strings.TrimSpace(cfg.OTLPEndpoint); endpoint != "" {
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	}
	return stdouttrace.New(stdouttrace.WithPrettyPrint())
}

// Tracer возвращает трейсер сервиса из глобального провайдера.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartSpan открывает спан с атрибутами.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan фиксирует ошибку (если есть) и закрывает спан.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
