package inventory

import (
	"context"
	"errors"
	"time"

	"reservationservice/internal/domain"
	"reservationservice/internal/platform/observability"
	"reservationservice/internal/pricing"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const insufficientStockMessage = "Insufficient stock available"

// errInsufficientStock rolls the claim transaction back; callers see a rejected result.
var errInsufficientStock = errors.New("insufficient stock")

// Pricer quotes a loaded item. *pricing.Engine implements it.
type Pricer interface {
	Quote(item domain.StockItem, quantity int, pc pricing.PriceContext) (pricing.Quote, error)
}

// ReserveRequest is a claim for Quantity units of VariantID. UserID may be empty for guests.
type ReserveRequest struct {
	VariantID int64
	Quantity  int
	UserID    string
}

// ReserveResult is the outcome of a claim. Success is false when stock ran out,
// which is a business rejection rather than an error.
type ReserveResult struct {
	Success       bool
	Message       string
	ReservationID string
	ExpiresAt     time.Time
	UnitPrice     decimal.Decimal
	PriceSnapshot decimal.Decimal
	Available     int
}

// ReservationService runs the claim protocol: lock the variant, derive availability
// from live reservations, and persist a priced reservation or reject.
type ReservationService struct {
	store     Store
	pricer    Pricer
	tiers     TierResolver
	publisher EventPublisher
	logger    observability.Logger
	tracer    observability.Tracer
	metrics   *observability.Metrics
	ttl       time.Duration
	now       Clock
}

// NewReservationService creates a reservation service instance with explicit dependencies
func NewReservationService(
	store Store,
	pricer Pricer,
	tiers TierResolver,
	publisher EventPublisher,
	logger observability.Logger,
	tracer observability.Tracer,
	metrics *observability.Metrics,
	ttl time.Duration,
	now Clock,
) *ReservationService {
	if ttl <= 0 {
		ttl = domain.DefaultReservationTTL
	}
	if now == nil {
		now = SystemClock
	}
	return &ReservationService{
		store:     store,
		pricer:    pricer,
		tiers:     tiers,
		publisher: publisher,
		logger:    logger,
		tracer:    tracer,
		metrics:   metrics,
		ttl:       ttl,
		now:       now,
	}
}

// Reserve claims stock for a user. Unknown variants fail with domain.ErrNotFound and
// persistence faults with *domain.TransactionError; nothing is written in either case.
func (s *ReservationService) Reserve(ctx context.Context, req ReserveRequest) (ReserveResult, error) {
	ctx, span := s.tracer.Start(ctx, "reserve_stock")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("variant.id", req.VariantID),
		attribute.Int("reservation.quantity", req.Quantity),
		attribute.String("user.id", req.UserID),
	)

	if req.Quantity < 1 {
		span.SetStatus(codes.Error, domain.ErrInvalidQuantity.Error())
		return ReserveResult{}, domain.ErrInvalidQuantity
	}

	tier, err := s.tierFor(ctx, req.UserID)
	if err != nil {
		return s.fail(span, req, domain.NewTransactionError("reserve", err))
	}

	var (
		created   *domain.Reservation
		available int
	)
	err = s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		item, err := tx.LockStockItem(ctx, req.VariantID)
		if err != nil {
			return err
		}

		now := s.now()
		reserved, err := tx.SumLiveQuantity(ctx, item.ID, now)
		if err != nil {
			return err
		}

		available = item.Available(reserved)
		if available < req.Quantity {
			return errInsufficientStock
		}

		quote, err := s.pricer.Quote(item, req.Quantity, pricing.PriceContext{Tier: tier})
		if err != nil {
			return err
		}

		reservation := domain.NewReservation(item.ID, req.UserID, req.Quantity, quote.UnitPrice, quote.Total, now, s.ttl)
		if err := tx.InsertReservation(ctx, reservation); err != nil {
			return err
		}
		created = reservation
		return nil
	})

	if errors.Is(err, errInsufficientStock) {
		s.metrics.ReservationRejected(ctx, req.VariantID)
		span.SetAttributes(
			attribute.Bool("inventory.available", false),
			attribute.Int("inventory.available_quantity", available),
		)
		span.SetStatus(codes.Ok, "insufficient stock")
		s.logger.Info("Reservation rejected: insufficient stock",
			zap.Int64("variantId", req.VariantID),
			zap.Int("requested", req.Quantity),
			zap.Int("available", available),
		)
		return ReserveResult{Success: false, Message: insufficientStockMessage, Available: available}, nil
	}
	if err != nil {
		return s.fail(span, req, domain.NewTransactionError("reserve", err))
	}

	s.metrics.ReservationCreated(ctx, req.VariantID)
	span.SetAttributes(
		attribute.String("reservation.id", created.ID.String()),
		attribute.String("reservation.price_snapshot", created.PriceSnapshot.StringFixed(2)),
	)
	span.SetStatus(codes.Ok, "stock reserved")

	s.logger.Info("Stock reserved",
		zap.String("reservationId", created.ID.String()),
		zap.Int64("variantId", created.ItemID),
		zap.String("userId", created.OwnerID),
		zap.Int("quantity", created.Quantity),
		zap.String("priceSnapshot", created.PriceSnapshot.StringFixed(2)),
		zap.Time("expiresAt", created.ExpiresAt),
	)

	s.publish(ctx, domain.ReservationCreatedEvent{
		ReservationID: created.ID.String(),
		VariantID:     created.ItemID,
		UserID:        created.OwnerID,
		Quantity:      created.Quantity,
		PriceSnapshot: created.PriceSnapshot,
		ExpiresAt:     created.ExpiresAt,
		OccurredAt:    created.CreatedAt,
	})

	return ReserveResult{
		Success:       true,
		ReservationID: created.ID.String(),
		ExpiresAt:     created.ExpiresAt,
		UnitPrice:     created.UnitPrice,
		PriceSnapshot: created.PriceSnapshot,
		Available:     available - created.Quantity,
	}, nil
}

func (s *ReservationService) tierFor(ctx context.Context, userID string) (string, error) {
	if userID == "" || s.tiers == nil {
		return pricing.TierStandard, nil
	}
	return s.tiers.TierFor(ctx, userID)
}

func (s *ReservationService) fail(span trace.Span, req ReserveRequest, err error) (ReserveResult, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Info("Reservation for unknown variant", zap.Int64("variantId", req.VariantID))
		return ReserveResult{}, err
	}
	s.logger.Error("Reservation failed",
		zap.Error(err),
		zap.Int64("variantId", req.VariantID),
		zap.String("userId", req.UserID),
	)
	return ReserveResult{}, err
}

func (s *ReservationService) publish(ctx context.Context, event domain.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("Failed to publish event",
			zap.String("eventType", event.EventType()),
			zap.Error(err),
		)
	}
}
