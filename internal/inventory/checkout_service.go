package inventory

import (
	"context"
	"errors"
	"sort"

	"reservationservice/internal/domain"
	"reservationservice/internal/platform/observability"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// CheckoutLine is one settled reservation.
type CheckoutLine struct {
	ReservationID string
	VariantID     int64
	Quantity      int
	Amount        decimal.Decimal
}

// CheckoutResult summarises a settlement. ItemsSold counts reservations.
type CheckoutResult struct {
	ItemsSold   int
	TotalAmount decimal.Decimal
	Lines       []CheckoutLine
}

// CheckoutService converts an owner's live reservations into permanent stock deductions,
// charging the price captured when each claim was made.
type CheckoutService struct {
	store     Store
	publisher EventPublisher
	logger    observability.Logger
	tracer    observability.Tracer
	metrics   *observability.Metrics
	now       Clock
}

// NewCheckoutService creates a checkout service instance with explicit dependencies
func NewCheckoutService(
	store Store,
	publisher EventPublisher,
	logger observability.Logger,
	tracer observability.Tracer,
	metrics *observability.Metrics,
	now Clock,
) *CheckoutService {
	if now == nil {
		now = SystemClock
	}
	return &CheckoutService{
		store:     store,
		publisher: publisher,
		logger:    logger,
		tracer:    tracer,
		metrics:   metrics,
		now:       now,
	}
}

// Checkout settles every live reservation of userID in one transaction.
// It returns domain.ErrEmptyCart when there is nothing live to settle.
func (s *CheckoutService) Checkout(ctx context.Context, userID string) (CheckoutResult, error) {
	ctx, span := s.tracer.Start(ctx, "checkout")
	defer span.End()

	span.SetAttributes(attribute.String("user.id", userID))

	if userID == "" {
		span.SetStatus(codes.Error, domain.ErrEmptyCart.Error())
		return CheckoutResult{}, domain.ErrEmptyCart
	}

	var result CheckoutResult
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		result = CheckoutResult{TotalAmount: decimal.Zero}

		candidates, err := tx.FindLiveByOwner(ctx, userID, s.now())
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return domain.ErrEmptyCart
		}

		// Ascending id order keeps concurrent checkouts from deadlocking on shared items.
		itemIDs := distinctItems(candidates)
		locked := make(map[int64]struct{}, len(itemIDs))
		for _, itemID := range itemIDs {
			if _, err := tx.LockStockItem(ctx, itemID); err != nil {
				return err
			}
			locked[itemID] = struct{}{}
		}

		// Liveness is decided under the item locks, so a reservation that a concurrent
		// claim already treated as expired is never settled.
		reservations, err := tx.FindLiveByOwner(ctx, userID, s.now())
		if err != nil {
			return err
		}

		for _, r := range reservations {
			if _, ok := locked[r.ItemID]; !ok {
				// Claimed after the first read; left for the next checkout.
				continue
			}
			deleted, err := tx.DeleteReservation(ctx, r.ID)
			if err != nil {
				return err
			}
			if !deleted {
				s.logger.Warn("Reservation vanished before settlement",
					zap.String("reservationId", r.ID.String()),
					zap.String("userId", userID),
				)
				continue
			}
			if err := tx.DecrementStock(ctx, r.ItemID, r.Quantity); err != nil {
				return err
			}
			result.TotalAmount = result.TotalAmount.Add(r.PriceSnapshot)
			result.Lines = append(result.Lines, CheckoutLine{
				ReservationID: r.ID.String(),
				VariantID:     r.ItemID,
				Quantity:      r.Quantity,
				Amount:        r.PriceSnapshot,
			})
		}

		if len(result.Lines) == 0 {
			return domain.ErrEmptyCart
		}
		result.ItemsSold = len(result.Lines)
		return nil
	})

	if errors.Is(err, domain.ErrEmptyCart) {
		span.SetStatus(codes.Error, err.Error())
		s.logger.Info("Checkout rejected: empty cart", zap.String("userId", userID))
		return CheckoutResult{}, err
	}
	if err != nil {
		err = domain.NewTransactionError("checkout", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.logger.Error("Checkout failed", zap.Error(err), zap.String("userId", userID))
		return CheckoutResult{}, err
	}

	s.metrics.CheckoutCompleted(ctx, result.ItemsSold)
	span.SetAttributes(
		attribute.Int("checkout.items_sold", result.ItemsSold),
		attribute.String("checkout.total_amount", result.TotalAmount.StringFixed(2)),
	)
	span.SetStatus(codes.Ok, "checkout completed")

	s.logger.Info("Checkout completed",
		zap.String("userId", userID),
		zap.Int("itemsSold", result.ItemsSold),
		zap.String("totalAmount", result.TotalAmount.StringFixed(2)),
	)

	if err := s.publisher.Publish(ctx, domain.CheckoutCompletedEvent{
		UserID:      userID,
		ItemsSold:   result.ItemsSold,
		TotalAmount: result.TotalAmount,
		OccurredAt:  s.now(),
	}); err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("eventType", domain.EventCheckoutCompleted),
			zap.Error(err),
		)
	}

	return result, nil
}

func distinctItems(reservations []domain.Reservation) []int64 {
	seen := make(map[int64]struct{}, len(reservations))
	ids := make([]int64, 0, len(reservations))
	for _, r := range reservations {
		if _, ok := seen[r.ItemID]; ok {
			continue
		}
		seen[r.ItemID] = struct{}{}
		ids = append(ids, r.ItemID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
