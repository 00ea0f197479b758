package inventory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"reservationservice/internal/domain"
	"reservationservice/internal/inventory"
	"reservationservice/internal/platform/observability"
	"reservationservice/internal/pricing"
	"reservationservice/internal/storage/memory"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

type fixture struct {
	store       *memory.Store
	engine      *pricing.Engine
	clock       *testClock
	publisher   *recordingPublisher
	reservation *inventory.ReservationService
	checkout    *inventory.CheckoutService
}

func newFixture(t *testing.T, items ...domain.StockItem) *fixture {
	t.Helper()
	return newFixtureWithStore(t, nil, items...)
}

// newFixtureWithStore lets a test put a wrapper in front of the memory store.
func newFixtureWithStore(t *testing.T, wrap func(inventory.Store) inventory.Store, items ...domain.StockItem) *fixture {
	t.Helper()

	store := memory.NewStore()
	for _, item := range items {
		if err := store.PutStockItem(item); err != nil {
			t.Fatalf("Expected no error seeding store, got: %v", err)
		}
	}

	clock := &testClock{now: t0}
	tracer := noop.NewTracerProvider().Tracer("test")
	engine, err := pricing.NewEngine(store, tracer, nil, pricing.WithClock(clock.Now))
	if err != nil {
		t.Fatalf("Expected no error creating engine, got: %v", err)
	}

	var backend inventory.Store = store
	if wrap != nil {
		backend = wrap(store)
	}

	pub := &recordingPublisher{}
	logger := zap.NewNop()
	metrics := observability.NoopMetrics()

	return &fixture{
		store:       store,
		engine:      engine,
		clock:       clock,
		publisher:   pub,
		reservation: inventory.NewReservationService(backend, engine, store, pub, logger, tracer, metrics, domain.DefaultReservationTTL, clock.Now),
		checkout:    inventory.NewCheckoutService(backend, pub, logger, tracer, metrics, clock.Now),
	}
}

func variant(id int64, stock int, base int64) domain.StockItem {
	return domain.StockItem{
		ID:            id,
		ProductID:     id,
		SKU:           "SKU-" + decimal.NewFromInt(id).String(),
		PhysicalStock: stock,
		BasePrice:     decimal.NewFromInt(base),
	}
}

func (f *fixture) stockOf(t *testing.T, id int64) int {
	t.Helper()
	item, err := f.store.GetStockItem(context.Background(), id)
	if err != nil {
		t.Fatalf("Expected no error reading stock, got: %v", err)
	}
	return item.PhysicalStock
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }
