package observe

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// InitProvider installs a global MeterProvider backed by the Prometheus
// exporter and returns Metrics built on it. The returned shutdown flushes the
// provider; call it from main on exit.
func InitProvider() (*Metrics, func(context.Context) error, error) {
	promExp, err := promexporter.New()
	if err != nil {
		return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(promExp))
	otel.SetMeterProvider(mp)

	m, err := NewMetrics(mp)
	if err != nil {
		_ = mp.Shutdown(context.Background())
		return nil, nil, fmt.Errorf("create instruments: %w", err)
	}
	return m, mp.Shutdown, nil
}

// Handler serves the default Prometheus registry, which the exporter
// registers with.
func Handler() http.Handler {
	return promhttp.Handler()
}
