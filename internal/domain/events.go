package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event type names written to the InventoryEvents topic.
const (
	EventReservationCreated    = "ReservationCreated"
	EventCheckoutCompleted     = "CheckoutCompleted"
	EventReservationsReclaimed = "ReservationsReclaimed"
)

// Event is anything the core announces after a commit.
type Event interface {
	EventType() string
	EventKey() string
}

// ReservationCreatedEvent is emitted after a claim commits.
type ReservationCreatedEvent struct {
	ReservationID string          `json:"reservation_id"`
	VariantID     int64           `json:"variant_id"`
	UserID        string          `json:"user_id,omitempty"`
	Quantity      int             `json:"quantity"`
	PriceSnapshot decimal.Decimal `json:"price_snapshot"`
	ExpiresAt     time.Time       `json:"expires_at"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func (e ReservationCreatedEvent) EventType() string { return EventReservationCreated }
func (e ReservationCreatedEvent) EventKey() string  { return e.ReservationID }

// CheckoutCompletedEvent is emitted after a settlement commits.
type CheckoutCompletedEvent struct {
	UserID      string          `json:"user_id"`
	ItemsSold   int             `json:"items_sold"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

func (e CheckoutCompletedEvent) EventType() string { return EventCheckoutCompleted }
func (e CheckoutCompletedEvent) EventKey() string  { return e.UserID }

// ReservationsReclaimedEvent is emitted when a reclaim cycle removed at least one claim.
type ReservationsReclaimedEvent struct {
	Count      int64     `json:"count"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e ReservationsReclaimedEvent) EventType() string { return EventReservationsReclaimed }
func (e ReservationsReclaimedEvent) EventKey() string  { return "reclaim" }
