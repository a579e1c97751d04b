package license

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// TracerName names spans emitted by the license manager.
const TracerName = "license-manager"

// Metrics holds the license OpenTelemetry instruments.
type Metrics struct {
	Evaluations         metric.Int64Counter
	EvaluationDuration  metric.Float64Histogram
	CacheHits           metric.Int64Counter
	CacheMisses         metric.Int64Counter
	Imports             metric.Int64Counter
	FingerprintDegraded metric.Int64Counter
}

// InitializeLicenseMetrics creates the license instruments on meter.
func InitializeLicenseMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.Evaluations, err = meter.Int64Counter(
		"license_evaluations_total",
		metric.WithDescription("License evaluations by outcome, reason and source"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluations counter: %w", err)
	}

	m.EvaluationDuration, err = meter.Float64Histogram(
		"license_evaluation_duration_seconds",
		metric.WithDescription("Time spent loading, verifying and evaluating the license"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create evaluation duration histogram: %w", err)
	}

	m.CacheHits, err = meter.Int64Counter(
		"license_decision_cache_hits_total",
		metric.WithDescription("Status queries answered from the decision cache"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache hits counter: %w", err)
	}

	m.CacheMisses, err = meter.Int64Counter(
		"license_decision_cache_misses_total",
		metric.WithDescription("Status queries that recomputed the decision"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache misses counter: %w", err)
	}

	m.Imports, err = meter.Int64Counter(
		"license_imports_total",
		metric.WithDescription("License import attempts by result"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create imports counter: %w", err)
	}

	m.FingerprintDegraded, err = meter.Int64Counter(
		"license_fingerprint_degraded_total",
		metric.WithDescription("Fingerprints computed with at least one placeholder component"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fingerprint degraded counter: %w", err)
	}

	return m, nil
}

// noopMetrics backs managers built without a meter.
func noopMetrics() *Metrics {
	m, _ := InitializeLicenseMetrics(noop.NewMeterProvider().Meter(TracerName))
	return m
}

func (m *Metrics) recordEvaluation(ctx context.Context, d Decision, elapsed time.Duration) {
	outcome := "inactive"
	switch {
	case d.InGrace:
		outcome = "grace"
	case d.Active:
		outcome = "active"
	}
	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("reason", d.Reason),
		attribute.String("source", d.Source),
	)
	m.Evaluations.Add(ctx, 1, attrs)
	m.EvaluationDuration.Record(ctx, elapsed.Seconds(), attrs)
}

func (m *Metrics) recordImport(ctx context.Context, result string) {
	m.Imports.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
