package pricing

import (
	"context"
	"sync"
	"time"

	"reservationservice/internal/domain"
	"reservationservice/internal/platform/observability"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CatalogReader resolves a variant with its product base price.
type CatalogReader interface {
	GetStockItem(ctx context.Context, itemID int64) (domain.StockItem, error)
}

// PriceContext carries requester attributes rules may look at.
type PriceContext struct {
	Tier string
}

// Adjustment is one line of the price breakdown.
type Adjustment struct {
	Rule   string          `json:"rule"`
	Amount decimal.Decimal `json:"amount"`
}

// Quote is the presentation form of a price: money values are rounded to cents.
type Quote struct {
	VariantID     int64           `json:"variantId"`
	Quantity      int             `json:"quantity"`
	OriginalPrice decimal.Decimal `json:"originalPrice"`
	UnitPrice     decimal.Decimal `json:"finalUnitPrice"`
	Total         decimal.Decimal `json:"finalTotal"`
	Breakdown     []Adjustment    `json:"breakdown"`
}

// Engine computes prices from the current rule set. It holds no per-request state.
type Engine struct {
	catalog CatalogReader
	tracer  observability.Tracer
	now     func() time.Time

	mu    sync.RWMutex
	rules []Rule
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock sets the time source used for dated rules.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a pricing engine. A nil rules slice means DefaultRules.
func NewEngine(catalog CatalogReader, tracer observability.Tracer, rules []Rule, opts ...Option) (*Engine, error) {
	if rules == nil {
		rules = DefaultRules()
	}
	e := &Engine{
		catalog: catalog,
		tracer:  tracer,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.SetRules(rules); err != nil {
		return nil, err
	}
	return e, nil
}

// Rules returns a copy of the active rules.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// SetRules swaps the rule set atomically. Existing reservations keep their snapshot.
func (e *Engine) SetRules(rules []Rule) error {
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	next := make([]Rule, len(rules))
	copy(next, rules)

	e.mu.Lock()
	e.rules = next
	e.mu.Unlock()
	return nil
}

// ComputePrice looks the variant up and quotes it.
func (e *Engine) ComputePrice(ctx context.Context, itemID int64, quantity int, pc PriceContext) (Quote, error) {
	ctx, span := e.tracer.Start(ctx, "compute_price")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("variant.id", itemID),
		attribute.Int("pricing.quantity", quantity),
		attribute.String("pricing.tier", pc.Tier),
	)

	if quantity < 1 {
		span.SetStatus(codes.Error, domain.ErrInvalidQuantity.Error())
		return Quote{}, domain.ErrInvalidQuantity
	}

	item, err := e.catalog.GetStockItem(ctx, itemID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "variant lookup failed")
		return Quote{}, err
	}

	quote, err := e.Quote(item, quantity, pc)
	if err != nil {
		return Quote{}, err
	}
	span.SetAttributes(attribute.String("pricing.total", quote.Total.StringFixed(2)))
	span.SetStatus(codes.Ok, "price computed")
	return quote, nil
}

// Quote prices an already-loaded item. It has no side effects.
func (e *Engine) Quote(item domain.StockItem, quantity int, pc PriceContext) (Quote, error) {
	if quantity < 1 {
		return Quote{}, domain.ErrInvalidQuantity
	}

	e.mu.RLock()
	rules := e.rules
	e.mu.RUnlock()
	now := e.now()

	original := item.ListPrice()
	unit := original
	breakdown := []Adjustment{{Rule: "Base Price", Amount: original.Round(2)}}

	for _, r := range rules {
		if !r.Applies(quantity, pc, now) {
			continue
		}
		discount := unit.Mul(r.Percent).Div(hundred)
		unit = unit.Sub(discount)
		breakdown = append(breakdown, Adjustment{Rule: r.Name, Amount: discount.Neg().Round(2)})
	}

	total := unit.Mul(decimal.NewFromInt(int64(quantity)))

	return Quote{
		VariantID:     item.ID,
		Quantity:      quantity,
		OriginalPrice: original.Round(2),
		UnitPrice:     unit.Round(2),
		Total:         total.Round(2),
		Breakdown:     breakdown,
	}, nil
}
