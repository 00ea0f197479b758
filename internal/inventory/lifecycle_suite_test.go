package inventory_test

import (
	"context"
	"testing"

	"reservationservice/internal/domain"
	"reservationservice/internal/inventory"
	"reservationservice/internal/platform/observability"
	"reservationservice/internal/pricing"
	"reservationservice/internal/reclaim"

	"github.com/stretchr/testify/suite"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

// LifecycleTestSuite walks a variant through claims, expiry, reclaim and checkout.
type LifecycleTestSuite struct {
	suite.Suite
	f         *fixture
	reclaimer *reclaim.Reclaimer
}

func (s *LifecycleTestSuite) SetupTest() {
	s.f = newFixture(s.T(), variant(1, 10, 1000), variant(2, 5, 40))
	s.f.store.SetTier("gold_user", pricing.TierGold)
	s.reclaimer = reclaim.NewReclaimer(s.f.store, s.f.publisher, zap.NewNop(),
		noop.NewTracerProvider().Tracer("test"), observability.NoopMetrics(), s.f.clock.Now)
}

func (s *LifecycleTestSuite) reserve(variantID int64, qty int, user string) inventory.ReserveResult {
	result, err := s.f.reservation.Reserve(context.Background(), inventory.ReserveRequest{VariantID: variantID, Quantity: qty, UserID: user})
	s.Require().NoError(err)
	return result
}

func (s *LifecycleTestSuite) TestSuccessfulPurchase() {
	first := s.reserve(1, 2, "user1")
	s.True(first.Success)
	s.Equal(8, first.Available)

	second := s.reserve(2, 3, "user1")
	s.True(second.Success)
	s.True(second.PriceSnapshot.Equal(dec("108")))

	result, err := s.f.checkout.Checkout(context.Background(), "user1")
	s.Require().NoError(err)
	s.Equal(2, result.ItemsSold)
	s.True(result.TotalAmount.Equal(dec("1908")), "total %s", result.TotalAmount)
	s.Len(result.Lines, 2)

	s.Equal(8, s.f.stockOf(s.T(), 1))
	s.Equal(2, s.f.stockOf(s.T(), 2))
	s.Empty(s.f.store.Reservations())
}

func (s *LifecycleTestSuite) TestAbandonedCartIsReclaimed() {
	s.True(s.reserve(1, 10, "user1").Success)
	s.False(s.reserve(1, 1, "user2").Success)

	s.f.clock.Advance(domain.DefaultReservationTTL)

	n, err := s.reclaimer.ReclaimExpired(context.Background())
	s.Require().NoError(err)
	s.Equal(int64(1), n)
	s.Equal(10, s.f.stockOf(s.T(), 1))

	_, err = s.f.checkout.Checkout(context.Background(), "user1")
	s.ErrorIs(err, domain.ErrEmptyCart)

	result := s.reserve(1, 10, "user2")
	s.True(result.Success)
	s.Contains(s.f.publisher.Types(), domain.EventReservationsReclaimed)
}

func (s *LifecycleTestSuite) TestGoldCustomerKeepsQuotedPrice() {
	result := s.reserve(1, 11, "gold_user")
	s.False(result.Success, "only 10 units exist")

	result = s.reserve(1, 10, "gold_user")
	s.Require().True(result.Success)
	// 1000 x 0.9 x 0.85; ten units is not bulk.
	s.True(result.UnitPrice.Equal(dec("765")))

	s.Require().NoError(s.f.engine.SetRules(nil))

	checkout, err := s.f.checkout.Checkout(context.Background(), "gold_user")
	s.Require().NoError(err)
	s.True(checkout.TotalAmount.Equal(dec("7650")))
}

func TestLifecycleTestSuite(t *testing.T) {
	suite.Run(t, new(LifecycleTestSuite))
}
