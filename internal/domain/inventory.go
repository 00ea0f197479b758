package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultReservationTTL is how long a claim holds stock before it can be reclaimed.
const DefaultReservationTTL = 15 * time.Minute

// StockItem is a sellable variant as seen by the reservation core.
// PhysicalStock only shrinks at checkout; availability is always derived.
type StockItem struct {
	ID              int64           `json:"id"`
	ProductID       int64           `json:"product_id"`
	SKU             string          `json:"sku"`
	PhysicalStock   int             `json:"physical_stock"`
	BasePrice       decimal.Decimal `json:"base_price"`
	PriceAdjustment decimal.Decimal `json:"price_adjustment"`
}

// ListPrice is the unit price before any pricing rule runs.
func (i StockItem) ListPrice() decimal.Decimal {
	return i.BasePrice.Add(i.PriceAdjustment)
}

// Available returns what is left for new claims given the live reserved quantity.
func (i StockItem) Available(reserved int) int {
	return i.PhysicalStock - reserved
}

// Reservation is a time-bounded claim on stock with a frozen price.
// It is never updated after creation, only deleted.
type Reservation struct {
	ID            uuid.UUID       `json:"id"`
	ItemID        int64           `json:"item_id"`
	OwnerID       string          `json:"owner_id,omitempty"`
	CartID        string          `json:"cart_id"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	PriceSnapshot decimal.Decimal `json:"price_snapshot"`
	ExpiresAt     time.Time       `json:"expires_at"`
	CreatedAt     time.Time       `json:"created_at"`
}

// NewReservation builds a claim that expires ttl after now.
func NewReservation(itemID int64, ownerID string, quantity int, unitPrice, total decimal.Decimal, now time.Time, ttl time.Duration) *Reservation {
	return &Reservation{
		ID:            uuid.New(),
		ItemID:        itemID,
		OwnerID:       ownerID,
		CartID:        CartIDFor(ownerID),
		Quantity:      quantity,
		UnitPrice:     unitPrice,
		PriceSnapshot: total,
		ExpiresAt:     now.Add(ttl),
		CreatedAt:     now,
	}
}

// IsLive reports whether the claim still counts against stock at now.
func (r Reservation) IsLive(now time.Time) bool {
	return now.Before(r.ExpiresAt)
}

// CartIDFor derives the cart a claim belongs to. Guests share a single anonymous cart id.
func CartIDFor(ownerID string) string {
	if ownerID == "" {
		return "cart_guest"
	}
	return "cart_" + ownerID
}
