package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricMatchesTotal  = "matchkit.matches.total"
	metricMatchDuration = "matchkit.match.duration.seconds"

	attrMode   = "mode"
	attrResult = "result"

	resultHit  = "hit"
	resultMiss = "miss"
)

// matchDurationBoundaries covers microsecond-scale single lookups up to
// multi-second whole-file scans.
var matchDurationBoundaries = []float64{
	0.000001, 0.00001, 0.0001, 0.001, 0.01, 0.1, 0.5, 1, 5, 30,
}

// MatchMetrics holds the instruments for prefix match operations.
type MatchMetrics struct {
	matchesTotal  metric.Int64Counter
	matchDuration metric.Float64Histogram
}

// NewMatchMetrics creates match instruments from the given meter.
func NewMatchMetrics(mt metric.Meter) (*MatchMetrics, error) {
	b := newInstrumentBuilder(mt)

	mm := &MatchMetrics{
		matchesTotal:  b.counter(metricMatchesTotal, "Total prefix match operations", "{match}"),
		matchDuration: b.histogram(metricMatchDuration, "Prefix match duration in seconds", "s", matchDurationBoundaries...),
	}

	if b.err != nil {
		return nil, b.err
	}

	return mm, nil
}

// RecordMatch records one match operation with its mode and outcome.
func (mm *MatchMetrics) RecordMatch(ctx context.Context, mode string, hit bool, duration time.Duration) {
	result := resultMiss
	if hit {
		result = resultHit
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMode, mode),
		attribute.String(attrResult, result),
	)

	mm.matchesTotal.Add(ctx, 1, attrs)
	mm.matchDuration.Record(ctx, duration.Seconds(), attrs)
}
