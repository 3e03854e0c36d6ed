package env

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/urbandriving/engine/internal/env"

// initMetrics creates the tick, collision and step-time instruments.
func (e *Environment) initMetrics() error {
	m := otel.Meter(instrumentationName)

	var err error
	e.ticks, err = m.Int64Counter(
		"env.ticks",
		metric.WithDescription("Simulation ticks completed"),
	)
	if err != nil {
		return fmt.Errorf("creating ticks counter: %w", err)
	}

	e.collisions, err = m.Int64Counter(
		"env.collisions",
		metric.WithDescription("Collisions observed, dynamic and static"),
	)
	if err != nil {
		return fmt.Errorf("creating collisions counter: %w", err)
	}

	e.stepTime, err = m.Float64Histogram(
		"env.step.duration",
		metric.WithDescription("Wall time of one tick"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return fmt.Errorf("creating step duration histogram: %w", err)
	}
	return nil
}
