// Package observability wires OpenTelemetry tracing and metrics for the
// controller and worker processes.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"planetoidgen/internal/store"
)

// InitMetrics installs a global meter provider backed by a Prometheus
// exporter. It returns the /metrics handler and a shutdown function.
func InitMetrics() (http.Handler, func(context.Context) error, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	return promhttp.Handler(), provider.Shutdown, nil
}

// RegisterQueueDepth reports the backlog of every stage topic as the
// planetoidgen.queue.depth gauge, read from inspector on each collection.
func RegisterQueueDepth(inspector store.QueueInspector, logger *slog.Logger) (metric.Registration, error) {
	if logger == nil {
		logger = slog.Default()
	}
	meter := otel.Meter("planetoidgen/queue")
	gauge, err := meter.Int64ObservableGauge("planetoidgen.queue.depth",
		metric.WithDescription("Queued jobs per stage topic"))
	if err != nil {
		return nil, fmt.Errorf("failed to create queue depth gauge: %w", err)
	}

	return meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		depth, err := inspector.Depth(ctx)
		if err != nil {
			// A failed read skips this collection only.
			logger.Warn("failed to read queue depth", "error", err)
			return nil
		}
		for topic, n := range depth {
			o.ObserveInt64(gauge, n, metric.WithAttributes(attribute.String("topic", topic)))
		}
		return nil
	}, gauge)
}
