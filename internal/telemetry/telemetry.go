// Package telemetry wires OpenTelemetry traces and metrics. When disabled the
// returned providers are no-ops; when enabled, spans and metric snapshots are
// exported as JSON lines into size-rotated files.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const (
	serviceName     = "deskrec"
	instrumentation = "github.com/offlinefirst/deskrec"

	TracesFile  = "traces.jsonl"
	MetricsFile = "metrics.jsonl"
)

// Options configure Init.
type Options struct {
	Enabled        bool
	Dir            string
	Interval       time.Duration
	ServiceVersion string
	MaxSizeMB      int
	MaxBackups     int
}

// Providers exposes the tracer and meter handed to instrumented packages.
type Providers struct {
	Tracer  trace.Tracer
	Meter   metric.Meter
	Enabled bool

	shutdown []func(context.Context) error
}

// Noop returns providers that record nothing.
func Noop() *Providers {
	return &Providers{
		Tracer: tracenoop.NewTracerProvider().Tracer(instrumentation),
		Meter:  metricnoop.NewMeterProvider().Meter(instrumentation),
	}
}

// Init builds the providers described by opts and installs them globally.
func Init(ctx context.Context, opts Options) (*Providers, error) {
	if !opts.Enabled {
		return Noop(), nil
	}
	if opts.Dir == "" {
		return nil, errors.New("telemetry directory must not be empty")
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create telemetry directory: %w", err)
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	maxSize := opts.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	version := opts.ServiceVersion
	if version == "" {
		version = "dev"
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	traceFile := &lumberjack.Logger{
		Filename:   filepath.Join(opts.Dir, TracesFile),
		MaxSize:    maxSize,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}
	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(traceFile))
	if err != nil {
		_ = traceFile.Close()
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	metricFile := &lumberjack.Logger{
		Filename:   filepath.Join(opts.Dir, MetricsFile),
		MaxSize:    maxSize,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}
	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(metricFile))
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = traceFile.Close()
		_ = metricFile.Close()
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(interval)),
		),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	return &Providers{
		Tracer:  tp.Tracer(instrumentation),
		Meter:   mp.Meter(instrumentation),
		Enabled: true,
		shutdown: []func(context.Context) error{
			tp.Shutdown,
			mp.Shutdown,
			func(context.Context) error { return traceFile.Close() },
			func(context.Context) error { return metricFile.Close() },
		},
	}, nil
}

// Shutdown flushes pending spans and metrics and closes the export files.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, fn := range p.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	p.shutdown = nil
	return errors.Join(errs...)
}
