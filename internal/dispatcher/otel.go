package dispatcher

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/urbandriving/engine/internal/dispatcher"

// initMetrics registers the dispatcher instruments on the global meter, which is
// a no-op until a meter provider is installed.
func (d *Dispatcher) initMetrics() error {
	m := otel.Meter(instrumentationName)

	var err error
	d.inflightGauge, err = m.Int64ObservableGauge(
		"dispatcher.tasks.inflight",
		metric.WithDescription("Policy evaluations currently running"),
	)
	if err != nil {
		return fmt.Errorf("creating inflight gauge: %w", err)
	}
	d.registration, err = m.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			o.ObserveInt64(d.inflightGauge, d.inflight.Load())
			return nil
		},
		d.inflightGauge,
	)
	if err != nil {
		return fmt.Errorf("registering inflight callback: %w", err)
	}

	d.processed, err = m.Int64Counter(
		"dispatcher.tasks.processed",
		metric.WithDescription("Total policy evaluations"),
	)
	if err != nil {
		return fmt.Errorf("creating processed counter: %w", err)
	}
	d.failed, err = m.Int64Counter(
		"dispatcher.tasks.failed",
		metric.WithDescription("Policy evaluations that returned an error"),
	)
	if err != nil {
		return fmt.Errorf("creating failed counter: %w", err)
	}
	return nil
}
