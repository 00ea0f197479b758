package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"reservationservice/internal/domain"
	"reservationservice/internal/inventory"
	"reservationservice/internal/pricing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// newTestStore connects to TEST_DATABASE_URL and skips when it is unset.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := Connect(ctx, url, 5)
	if err != nil {
		t.Fatalf("Expected no error connecting, got: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("Expected no error creating schema, got: %v", err)
	}
	return NewStore(pool)
}

func createVariant(t *testing.T, s *Store, stock int) int64 {
	t.Helper()
	ctx := context.Background()
	productID, err := s.CreateProduct(ctx, "Laptop", decimal.NewFromInt(1000))
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	id, err := s.CreateVariant(ctx, domain.StockItem{
		ProductID:       productID,
		SKU:             "LAPT-" + uuid.NewString(),
		PhysicalStock:   stock,
		PriceAdjustment: decimal.RequireFromString("10.50"),
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	return id
}

func TestStore_GetStockItem(t *testing.T) {
	s := newTestStore(t)
	id := createVariant(t, s, 10)

	item, err := s.GetStockItem(context.Background(), id)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if item.PhysicalStock != 10 {
		t.Errorf("Expected stock 10, got %d", item.PhysicalStock)
	}
	if !item.ListPrice().Equal(decimal.RequireFromString("1010.50")) {
		t.Errorf("Expected list price 1010.50, got %s", item.ListPrice())
	}

	if _, err := s.GetStockItem(context.Background(), -1); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got: %v", err)
	}
}

func TestStore_ReserveAndSettle(t *testing.T) {
	s := newTestStore(t)
	id := createVariant(t, s, 10)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	owner := "user_" + uuid.NewString()

	r := domain.NewReservation(id, owner, 2, decimal.NewFromInt(900), decimal.NewFromInt(1800), now, domain.DefaultReservationTTL)
	err := s.WithTx(ctx, func(ctx context.Context, tx inventory.Tx) error {
		if _, err := tx.LockStockItem(ctx, id); err != nil {
			return err
		}
		return tx.InsertReservation(ctx, r)
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	err = s.WithTx(ctx, func(ctx context.Context, tx inventory.Tx) error {
		sum, err := tx.SumLiveQuantity(ctx, id, now)
		if err != nil {
			return err
		}
		if sum != 2 {
			t.Errorf("Expected live quantity 2, got %d", sum)
		}

		live, err := tx.FindLiveByOwner(ctx, owner, now)
		if err != nil {
			return err
		}
		if len(live) != 1 || live[0].ID != r.ID || !live[0].PriceSnapshot.Equal(decimal.NewFromInt(1800)) {
			t.Fatalf("Unexpected live reservations: %+v", live)
		}

		deleted, err := tx.DeleteReservation(ctx, r.ID)
		if err != nil || !deleted {
			t.Fatalf("Expected reservation to be deleted, got %v, %v", deleted, err)
		}
		deleted, err = tx.DeleteReservation(ctx, r.ID)
		if err != nil || deleted {
			t.Errorf("Expected second delete to report nothing removed, got %v, %v", deleted, err)
		}
		return tx.DecrementStock(ctx, id, 2)
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	item, _ := s.GetStockItem(ctx, id)
	if item.PhysicalStock != 8 {
		t.Errorf("Expected stock 8, got %d", item.PhysicalStock)
	}
}

func TestStore_DecrementConflictRollsBack(t *testing.T) {
	s := newTestStore(t)
	id := createVariant(t, s, 1)

	err := s.WithTx(context.Background(), func(ctx context.Context, tx inventory.Tx) error {
		return tx.DecrementStock(ctx, id, 2)
	})
	if !errors.Is(err, domain.ErrStockConflict) {
		t.Errorf("Expected ErrStockConflict, got: %v", err)
	}
}

func TestStore_DeleteExpired(t *testing.T) {
	s := newTestStore(t)
	id := createVariant(t, s, 10)
	ctx := context.Background()
	past := time.Now().UTC().Add(-time.Hour)

	err := s.WithTx(ctx, func(ctx context.Context, tx inventory.Tx) error {
		expired := domain.NewReservation(id, "", 1, decimal.NewFromInt(900), decimal.NewFromInt(900), past, time.Minute)
		live := domain.NewReservation(id, "", 1, decimal.NewFromInt(900), decimal.NewFromInt(900), time.Now().UTC(), time.Hour)
		if err := tx.InsertReservation(ctx, expired); err != nil {
			return err
		}
		return tx.InsertReservation(ctx, live)
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	n, err := s.DeleteExpired(ctx, time.Now().UTC())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if n < 1 {
		t.Errorf("Expected at least the expired reservation to be removed, got %d", n)
	}

	err = s.WithTx(ctx, func(ctx context.Context, tx inventory.Tx) error {
		sum, err := tx.SumLiveQuantity(ctx, id, time.Now().UTC())
		if err != nil {
			return err
		}
		if sum != 1 {
			t.Errorf("Expected the live reservation to remain, got sum %d", sum)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
}

func TestStore_TierFor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	owner := "user_" + uuid.NewString()

	tier, err := s.TierFor(ctx, owner)
	if err != nil || tier != pricing.TierStandard {
		t.Errorf("Expected standard tier, got %s, %v", tier, err)
	}
	if err := s.SetTier(ctx, owner, pricing.TierGold); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	tier, _ = s.TierFor(ctx, owner)
	if tier != pricing.TierGold {
		t.Errorf("Expected gold tier, got %s", tier)
	}
}
