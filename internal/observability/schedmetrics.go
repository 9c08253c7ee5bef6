package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"

	"github.com/Sumatoshi-tech/matchkit/pkg/sched"
)

const (
	metricSchedPending    = "matchkit.sched.pending"
	metricSchedActive     = "matchkit.sched.active"
	metricSchedEnqueued   = "matchkit.sched.enqueued"
	metricSchedDispatched = "matchkit.sched.dispatched"
	metricSchedCompleted  = "matchkit.sched.completed"
)

// StatsProvider reports scheduler counters; satisfied by *sched.Scheduler.
type StatsProvider interface {
	Stats() sched.Stats
}

// SchedulerMetrics exposes a work scheduler's counters as OTel instruments.
// The meter's reader pulls a fresh snapshot on each collection cycle.
type SchedulerMetrics struct {
	provider StatsProvider

	pending    metric.Int64ObservableGauge
	active     metric.Int64ObservableGauge
	enqueued   metric.Int64ObservableCounter
	dispatched metric.Int64ObservableCounter
	completed  metric.Int64ObservableCounter
}

// NewSchedulerMetrics registers observable instruments backed by provider.
func NewSchedulerMetrics(mt metric.Meter, provider StatsProvider) (*SchedulerMetrics, error) {
	b := newInstrumentBuilder(mt)

	sm := &SchedulerMetrics{
		provider:   provider,
		pending:    b.observableGauge(metricSchedPending, "Work items not yet handed to the executor", "{item}"),
		active:     b.observableGauge(metricSchedActive, "Currently dispatched work items", "{item}"),
		enqueued:   b.observableCounter(metricSchedEnqueued, "Total work items enqueued", "{item}"),
		dispatched: b.observableCounter(metricSchedDispatched, "Total work items handed to the executor", "{item}"),
		completed:  b.observableCounter(metricSchedCompleted, "Total work routine finishes", "{item}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	_, err := mt.RegisterCallback(sm.observe,
		sm.pending, sm.active, sm.enqueued, sm.dispatched, sm.completed)
	if err != nil {
		return nil, fmt.Errorf("register scheduler metrics callback: %w", err)
	}

	return sm, nil
}

// observe snapshots the scheduler counters into the OTel observer.
func (sm *SchedulerMetrics) observe(_ context.Context, obs metric.Observer) error {
	stats := sm.provider.Stats()

	obs.ObserveInt64(sm.pending, stats.Pending)
	obs.ObserveInt64(sm.active, stats.Active)
	obs.ObserveInt64(sm.enqueued, stats.Enqueued)
	obs.ObserveInt64(sm.dispatched, stats.Dispatched)
	obs.ObserveInt64(sm.completed, stats.Completed)

	return nil
}
