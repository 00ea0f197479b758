// Package reclaim releases stock held by reservations whose TTL has passed.
package reclaim

import (
	"context"
	"time"

	"reservationservice/internal/domain"
	"reservationservice/internal/inventory"
	"reservationservice/internal/platform/observability"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// ExpiredDeleter is the part of the store the reclaimer needs.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Reclaimer deletes expired reservations. Physical stock is never touched:
// availability is derived, so a deleted claim frees its units on its own.
type Reclaimer struct {
	store     ExpiredDeleter
	publisher inventory.EventPublisher
	logger    observability.Logger
	tracer    observability.Tracer
	metrics   *observability.Metrics
	now       inventory.Clock
}

func NewReclaimer(
	store ExpiredDeleter,
	publisher inventory.EventPublisher,
	logger observability.Logger,
	tracer observability.Tracer,
	metrics *observability.Metrics,
	now inventory.Clock,
) *Reclaimer {
	if now == nil {
		now = inventory.SystemClock
	}
	return &Reclaimer{
		store:     store,
		publisher: publisher,
		logger:    logger,
		tracer:    tracer,
		metrics:   metrics,
		now:       now,
	}
}

// ReclaimExpired removes every reservation with expires_at <= now and returns the count.
func (r *Reclaimer) ReclaimExpired(ctx context.Context) (int64, error) {
	ctx, span := r.tracer.Start(ctx, "reclaim_expired")
	defer span.End()

	now := r.now()
	count, err := r.store.DeleteExpired(ctx, now)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete expired failed")
		return 0, err
	}

	span.SetAttributes(attribute.Int64("reclaim.count", count))
	span.SetStatus(codes.Ok, "reclaim completed")

	if count == 0 {
		r.logger.Debug("No expired reservations")
		return 0, nil
	}

	r.metrics.Reclaimed(ctx, count)
	r.logger.Info("Reclaimed expired reservations", zap.Int64("count", count))

	if err := r.publisher.Publish(ctx, domain.ReservationsReclaimedEvent{Count: count, OccurredAt: now}); err != nil {
		r.logger.Warn("Failed to publish event",
			zap.String("eventType", domain.EventReservationsReclaimed),
			zap.Error(err),
		)
	}
	return count, nil
}
