// Package otel wires OpenTelemetry for the simulator: log records through the
// otelslog bridge and the env and dispatcher instruments.
package otel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const defaultMetricInterval = time.Minute

// Config holds OTel configuration
type Config struct {
	Enabled      bool
	ServiceName  string
	BatchTimeout time.Duration
	// LogWriter receives pretty-printed log records and periodic metric dumps.
	LogWriter io.Writer
	// Endpoint is an optional OTLP/HTTP log collector.
	Endpoint string
	Insecure bool
	// MetricInterval is how often metrics are written to LogWriter.
	// Zero uses one minute.
	MetricInterval time.Duration
}

// Provider owns the log and meter providers. Its zero configuration is a no-op.
type Provider struct {
	logProvider   *sdklog.LoggerProvider
	meterProvider *sdkmetric.MeterProvider
	config        Config
}

// New creates a provider. A disabled config yields a no-op provider; an enabled
// one needs a LogWriter or an Endpoint. A LogWriter also turns on metric export,
// and that meter provider is installed globally.
func New(cfg Config) (*Provider, error) {
	p := &Provider{config: cfg}
	if !cfg.Enabled {
		return p, nil
	}

	ctx := context.Background()
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	processors, err := logProcessors(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if len(processors) == 0 {
		return nil, fmt.Errorf("OTel enabled but no log writer or endpoint configured")
	}

	logOpts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	for _, proc := range processors {
		logOpts = append(logOpts, sdklog.WithProcessor(proc))
	}
	p.logProvider = sdklog.NewLoggerProvider(logOpts...)

	if cfg.LogWriter != nil {
		p.meterProvider, err = newMeterProvider(cfg, res)
		if err != nil {
			_ = p.logProvider.Shutdown(ctx)
			return nil, err
		}
		otel.SetMeterProvider(p.meterProvider)
	}
	return p, nil
}

// logProcessors returns one batch processor per configured log destination.
func logProcessors(ctx context.Context, cfg Config) ([]sdklog.Processor, error) {
	var processors []sdklog.Processor
	batch := sdklog.WithExportTimeout(cfg.BatchTimeout)

	if cfg.LogWriter != nil {
		exp, err := stdoutlog.New(stdoutlog.WithWriter(cfg.LogWriter), stdoutlog.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("failed to create file log exporter: %w", err)
		}
		processors = append(processors, sdklog.NewBatchProcessor(exp, batch))
	}

	if cfg.Endpoint != "" {
		opts := []otlploghttp.Option{otlploghttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlploghttp.WithInsecure())
		}
		exp, err := otlploghttp.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP log exporter: %w", err)
		}
		processors = append(processors, sdklog.NewBatchProcessor(exp, batch))
	}
	return processors, nil
}

func newMeterProvider(cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	exp, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.LogWriter))
	if err != nil {
		return nil, fmt.Errorf("failed to create file metric exporter: %w", err)
	}
	interval := cfg.MetricInterval
	if interval <= 0 {
		interval = defaultMetricInterval
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(interval))),
	), nil
}

// LoggerProvider returns the log provider for the otelslog bridge, or nil when
// OTel is disabled.
func (p *Provider) LoggerProvider() *sdklog.LoggerProvider {
	return p.logProvider
}

// Meter returns a meter with the given name. It is a no-op meter unless metrics
// are exported.
func (p *Provider) Meter(name string) metric.Meter {
	if p.meterProvider == nil {
		return noop.Meter{}
	}
	return p.meterProvider.Meter(name)
}

// Flush exports pending logs and metrics, e.g. after an episode ends.
func (p *Provider) Flush(ctx context.Context) error {
	return p.each(
		func(lp *sdklog.LoggerProvider) error { return lp.ForceFlush(ctx) },
		func(mp *sdkmetric.MeterProvider) error { return mp.ForceFlush(ctx) },
		"flush",
	)
}

// Shutdown flushes and stops both providers. Call it once on exit.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.each(
		func(lp *sdklog.LoggerProvider) error { return lp.Shutdown(ctx) },
		func(mp *sdkmetric.MeterProvider) error { return mp.Shutdown(ctx) },
		"shutdown",
	)
}

func (p *Provider) each(logFn func(*sdklog.LoggerProvider) error, meterFn func(*sdkmetric.MeterProvider) error, op string) error {
	var errs []error
	if p.logProvider != nil {
		if err := logFn(p.logProvider); err != nil {
			errs = append(errs, fmt.Errorf("log %s failed: %w", op, err))
		}
	}
	if p.meterProvider != nil {
		if err := meterFn(p.meterProvider); err != nil {
			errs = append(errs, fmt.Errorf("metric %s failed: %w", op, err))
		}
	}
	return errors.Join(errs...)
}

// Enabled returns whether OTel is enabled
func (p *Provider) Enabled() bool {
	return p.config.Enabled
}
