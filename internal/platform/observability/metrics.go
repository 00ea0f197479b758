package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics groups the counters the reservation core reports.
type Metrics struct {
	reservationsCreated   metric.Int64Counter
	reservationsRejected  metric.Int64Counter
	checkoutsCompleted    metric.Int64Counter
	itemsSold             metric.Int64Counter
	reservationsReclaimed metric.Int64Counter
	reclaimFailures       metric.Int64Counter
}

// NewMetrics registers every instrument on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.reservationsCreated, err = meter.Int64Counter("reservations.created",
		metric.WithDescription("Claims that reserved stock"),
		metric.WithUnit("{reservation}")); err != nil {
		return nil, err
	}
	if m.reservationsRejected, err = meter.Int64Counter("reservations.rejected",
		metric.WithDescription("Claims rejected for insufficient stock"),
		metric.WithUnit("{reservation}")); err != nil {
		return nil, err
	}
	if m.checkoutsCompleted, err = meter.Int64Counter("checkouts.completed",
		metric.WithDescription("Successful settlements"),
		metric.WithUnit("{checkout}")); err != nil {
		return nil, err
	}
	if m.itemsSold, err = meter.Int64Counter("checkout.items_sold",
		metric.WithDescription("Reservations converted into sales"),
		metric.WithUnit("{reservation}")); err != nil {
		return nil, err
	}
	if m.reservationsReclaimed, err = meter.Int64Counter("reservations.reclaimed",
		metric.WithDescription("Expired reservations removed by the reclaimer"),
		metric.WithUnit("{reservation}")); err != nil {
		return nil, err
	}
	if m.reclaimFailures, err = meter.Int64Counter("reclaim.failures",
		metric.WithDescription("Reclaim cycles that failed"),
		metric.WithUnit("{cycle}")); err != nil {
		return nil, err
	}

	return m, nil
}

// NoopMetrics returns instruments that record nothing, for tests and tools.
func NoopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter("noop"))
	return m
}

func (m *Metrics) ReservationCreated(ctx context.Context, variantID int64) {
	m.reservationsCreated.Add(ctx, 1, metric.WithAttributes(attribute.Int64("variant.id", variantID)))
}

func (m *Metrics) ReservationRejected(ctx context.Context, variantID int64) {
	m.reservationsRejected.Add(ctx, 1, metric.WithAttributes(attribute.Int64("variant.id", variantID)))
}

func (m *Metrics) CheckoutCompleted(ctx context.Context, itemsSold int) {
	m.checkoutsCompleted.Add(ctx, 1)
	m.itemsSold.Add(ctx, int64(itemsSold))
}

func (m *Metrics) Reclaimed(ctx context.Context, count int64) {
	m.reservationsReclaimed.Add(ctx, count)
}

func (m *Metrics) ReclaimFailed(ctx context.Context) {
	m.reclaimFailures.Add(ctx, 1)
}
