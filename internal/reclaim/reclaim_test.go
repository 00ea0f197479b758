package reclaim

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reservationservice/internal/domain"
	"reservationservice/internal/inventory"
	"reservationservice/internal/platform/observability"
	"reservationservice/internal/storage/memory"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

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

type failingDeleter struct {
	calls atomic.Int32
}

func (d *failingDeleter) DeleteExpired(context.Context, time.Time) (int64, error) {
	d.calls.Add(1)
	return 0, errors.New("connection reset")
}

func newReclaimer(store ExpiredDeleter, pub inventory.EventPublisher, logger observability.Logger, now time.Time) *Reclaimer {
	return NewReclaimer(store, pub, logger, noop.NewTracerProvider().Tracer("test"), observability.NoopMetrics(),
		func() time.Time { return now })
}

func seedReservations(t *testing.T, store *memory.Store) {
	t.Helper()
	if err := store.PutStockItem(domain.StockItem{ID: 1, PhysicalStock: 10, BasePrice: decimal.NewFromInt(1000)}); err != nil {
		t.Fatalf("Expected no error seeding store, got: %v", err)
	}
	created := []time.Time{t0, t0.Add(time.Minute), t0.Add(20 * time.Minute)}
	err := store.WithTx(context.Background(), func(ctx context.Context, tx inventory.Tx) error {
		for _, at := range created {
			r := domain.NewReservation(1, "user_1", 1, decimal.NewFromInt(900), decimal.NewFromInt(900), at, domain.DefaultReservationTTL)
			if err := tx.InsertReservation(ctx, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Expected no error seeding reservations, got: %v", err)
	}
}

func TestReclaimer_ReclaimExpired(t *testing.T) {
	store := memory.NewStore()
	seedReservations(t, store)
	pub := &recordingPublisher{}

	// Two claims are at or past their deadline at t0+16m, the third is not.
	r := newReclaimer(store, pub, zap.NewNop(), t0.Add(16*time.Minute))

	n, err := r.ReclaimExpired(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 reclaimed, got %d", n)
	}
	if left := len(store.Reservations()); left != 1 {
		t.Errorf("Expected 1 reservation left, got %d", left)
	}

	item, _ := store.GetStockItem(context.Background(), 1)
	if item.PhysicalStock != 10 {
		t.Errorf("Expected physical stock untouched at 10, got %d", item.PhysicalStock)
	}

	if len(pub.events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(pub.events))
	}
	ev, ok := pub.events[0].(domain.ReservationsReclaimedEvent)
	if !ok || ev.Count != 2 {
		t.Errorf("Expected ReservationsReclaimed with count 2, got %+v", pub.events[0])
	}
}

func TestReclaimer_NothingExpired(t *testing.T) {
	store := memory.NewStore()
	seedReservations(t, store)
	pub := &recordingPublisher{}

	n, err := newReclaimer(store, pub, zap.NewNop(), t0).ReclaimExpired(context.Background())
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected 0 reclaimed, got %d", n)
	}
	if len(pub.events) != 0 {
		t.Errorf("Expected no event for an empty cycle, got %d", len(pub.events))
	}
}

func TestReclaimer_StoreError(t *testing.T) {
	_, err := newReclaimer(&failingDeleter{}, inventory.NoopPublisher{}, zap.NewNop(), t0).ReclaimExpired(context.Background())
	if err == nil {
		t.Fatal("Expected error from failing store")
	}
}

func TestScheduler_KeepsRunningAfterFailures(t *testing.T) {
	deleter := &failingDeleter{}
	core, logs := observer.New(zapcore.InfoLevel)
	var logger observability.Logger = zap.New(core)

	reclaimer := newReclaimer(deleter, inventory.NoopPublisher{}, logger, t0)
	scheduler := NewScheduler(reclaimer, logger, observability.NoopMetrics(), 5*time.Millisecond, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		scheduler.Start(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for deleter.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("Expected at least 3 ticks, got %d", deleter.calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Expected scheduler to stop after cancellation")
	}

	if logs.FilterMessage("Reclaim cycle failed").Len() < 2 {
		t.Errorf("Expected failed cycles to be logged, got %d", logs.FilterMessage("Reclaim cycle failed").Len())
	}
	if logs.FilterMessage("Reclaim scheduler stopped").Len() != 1 {
		t.Error("Expected stop to be logged once")
	}
}
