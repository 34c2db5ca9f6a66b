// Package metrics provides OpenTelemetry instrumentation for the encryption
// engine, exported in Prometheus format through the ops server.
package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Provider owns the metric pipeline: an isolated Prometheus registry fed by
// an OpenTelemetry reader. The dedicated registry keeps the scrape output
// limited to what this process registers, with Go runtime and process
// collectors included as an operational baseline alongside the engine
// instruments.
type Provider struct {
	registry      *prometheus.Registry
	meterProvider *metric.MeterProvider
}

// NewProvider builds the metric pipeline. namespace is the prefix instrument
// constructors put on every metric created through MeterProvider.
func NewProvider(namespace string) (*Provider, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := promexporter.New(promexporter.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	return &Provider{
		registry:      registry,
		meterProvider: metric.NewMeterProvider(metric.WithReader(exporter)),
	}, nil
}

// Handler serves the registry in Prometheus exposition format, for mounting
// at the ops server's /metrics endpoint.
func (p *Provider) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// MeterProvider returns the meter provider backing all engine instruments.
func (p *Provider) MeterProvider() *metric.MeterProvider {
	return p.meterProvider
}

// Shutdown flushes pending metrics and stops the pipeline.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.meterProvider == nil {
		return nil
	}
	return p.meterProvider.Shutdown(ctx)
}
