package inventory

import (
	"context"
	"time"

	"reservationservice/internal/domain"

	"github.com/google/uuid"
)

// Store is the reservation persistence boundary. Claims and settlements run through
// WithTx; the bulk expiry delete runs on its own.
type Store interface {
	// WithTx runs fn in one isolated transaction. A nil return commits, anything else
	// rolls back. Item locks taken inside fn are released when WithTx returns.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// DeleteExpired removes every reservation with expires_at <= now and reports how many.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	// GetStockItem reads a variant without locking it.
	GetStockItem(ctx context.Context, itemID int64) (domain.StockItem, error)
}

// Tx is the set of operations available inside a claim or checkout transaction.
type Tx interface {
	// LockStockItem takes the exclusive per-item lock and returns the current row.
	// Returns domain.ErrNotFound for an unknown item.
	LockStockItem(ctx context.Context, itemID int64) (domain.StockItem, error)

	// SumLiveQuantity totals reservations on itemID with expires_at > now. No rows is 0.
	SumLiveQuantity(ctx context.Context, itemID int64, now time.Time) (int, error)

	InsertReservation(ctx context.Context, r *domain.Reservation) error

	// FindLiveByOwner lists the owner's reservations with expires_at > now and holds them
	// for this transaction, so neither the reclaimer nor another checkout removes them
	// before commit. Calling it again in the same transaction sees the rows it already holds.
	FindLiveByOwner(ctx context.Context, ownerID string, now time.Time) ([]domain.Reservation, error)

	// DecrementStock lowers physical stock by amount, failing with
	// domain.ErrStockConflict instead of going negative.
	DecrementStock(ctx context.Context, itemID int64, amount int) error

	// DeleteReservation removes a reservation and reports whether it was still there.
	// A row that is already gone is not an error.
	DeleteReservation(ctx context.Context, id uuid.UUID) (bool, error)
}

// TierResolver maps an owner to the pricing tier used for their claims.
type TierResolver interface {
	TierFor(ctx context.Context, ownerID string) (string, error)
}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time { return time.Now().UTC() }
