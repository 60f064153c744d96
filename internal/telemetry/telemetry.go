package telemetry

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

const meterName = "github.com/shaibs3/ResearchGraph"

// Telemetry owns the OpenTelemetry meter and the Prometheus registry it
// exports into.
type Telemetry struct {
	Meter    metric.Meter
	provider *sdkmetric.MeterProvider
	registry *prometheus.Registry
}

func NewTelemetry(logger *zap.Logger) (*Telemetry, error) {
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	logger.Named("telemetry").Info("telemetry initialized")
	return &Telemetry{
		Meter:    provider.Meter(meterName),
		provider: provider,
		registry: registry,
	}, nil
}

// Handler serves the registry in the Prometheus text format.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}
