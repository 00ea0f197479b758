// Package memory is an embedded reservation store. Item locks are per-variant
// semaphores held until the owning transaction commits or rolls back; writes are
// buffered in the transaction and applied together at commit.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"reservationservice/internal/domain"
	"reservationservice/internal/inventory"
	"reservationservice/internal/pricing"

	"github.com/google/uuid"
)

// Store keeps variants, reservations and customer tiers in process memory.
type Store struct {
	mu           sync.Mutex
	items        map[int64]domain.StockItem
	locks        map[int64]chan struct{}
	reservations map[uuid.UUID]domain.Reservation

	// held marks reservations returned by FindLiveByOwner to an open transaction.
	held   map[uuid.UUID]uint64
	tiers  map[string]string
	nextTx uint64
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		items:        make(map[int64]domain.StockItem),
		locks:        make(map[int64]chan struct{}),
		reservations: make(map[uuid.UUID]domain.Reservation),
		held:         make(map[uuid.UUID]uint64),
		tiers:        make(map[string]string),
	}
}

var (
	_ inventory.Store        = (*Store)(nil)
	_ inventory.TierResolver = (*Store)(nil)
)

// PutStockItem creates or replaces a variant. It is the catalog's write path.
func (s *Store) PutStockItem(item domain.StockItem) error {
	if item.PhysicalStock < 0 {
		return fmt.Errorf("variant %d: physical stock must not be negative", item.ID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[item.ID] = item
	if _, ok := s.locks[item.ID]; !ok {
		s.locks[item.ID] = make(chan struct{}, 1)
	}
	return nil
}

// SetTier records the pricing tier of a customer.
func (s *Store) SetTier(ownerID, tier string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers[ownerID] = tier
}

// TierFor returns the customer's tier, or standard when none is recorded.
func (s *Store) TierFor(_ context.Context, ownerID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tier, ok := s.tiers[ownerID]; ok {
		return tier, nil
	}
	return pricing.TierStandard, nil
}

// GetStockItem reads the committed state of a variant.
func (s *Store) GetStockItem(_ context.Context, itemID int64) (domain.StockItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[itemID]
	if !ok {
		return domain.StockItem{}, domain.ErrNotFound
	}
	return item, nil
}

// Reservations returns a snapshot of every stored reservation ordered by creation.
func (s *Store) Reservations() []domain.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Reservation, 0, len(s.reservations))
	for _, r := range s.reservations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// DeleteExpired removes reservations with expires_at <= now. Reservations held by an
// open checkout are left for that checkout to settle or for a later cycle.
func (s *Store) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, r := range s.reservations {
		if r.IsLive(now) {
			continue
		}
		if _, busy := s.held[id]; busy {
			continue
		}
		delete(s.reservations, id)
		n++
	}
	return n, nil
}

// WithTx runs fn with a transaction whose writes become visible only on success.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx inventory.Tx) error) error {
	s.mu.Lock()
	s.nextTx++
	tx := &memTx{
		store:   s,
		id:      s.nextTx,
		locked:  make(map[int64]chan struct{}),
		deltas:  make(map[int64]int),
		deletes: make(map[uuid.UUID]struct{}),
	}
	s.mu.Unlock()

	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

type memTx struct {
	store   *Store
	id      uint64
	locked  map[int64]chan struct{}
	deltas  map[int64]int
	inserts []domain.Reservation
	deletes map[uuid.UUID]struct{}
}

func (tx *memTx) LockStockItem(ctx context.Context, itemID int64) (domain.StockItem, error) {
	if _, ok := tx.locked[itemID]; !ok {
		tx.store.mu.Lock()
		lock, exists := tx.store.locks[itemID]
		tx.store.mu.Unlock()
		if !exists {
			return domain.StockItem{}, domain.ErrNotFound
		}

		select {
		case lock <- struct{}{}:
		case <-ctx.Done():
			return domain.StockItem{}, ctx.Err()
		}
		tx.locked[itemID] = lock
	}

	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	item, ok := tx.store.items[itemID]
	if !ok {
		return domain.StockItem{}, domain.ErrNotFound
	}
	item.PhysicalStock += tx.deltas[itemID]
	return item, nil
}

func (tx *memTx) SumLiveQuantity(_ context.Context, itemID int64, now time.Time) (int, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	total := 0
	for id, r := range tx.store.reservations {
		if _, gone := tx.deletes[id]; gone {
			continue
		}
		if r.ItemID == itemID && r.IsLive(now) {
			total += r.Quantity
		}
	}
	for _, r := range tx.inserts {
		if r.ItemID == itemID && r.IsLive(now) {
			total += r.Quantity
		}
	}
	return total, nil
}

func (tx *memTx) InsertReservation(_ context.Context, r *domain.Reservation) error {
	if r.Quantity < 1 {
		return domain.ErrInvalidQuantity
	}
	tx.store.mu.Lock()
	_, exists := tx.store.items[r.ItemID]
	tx.store.mu.Unlock()
	if !exists {
		return domain.ErrNotFound
	}
	tx.inserts = append(tx.inserts, *r)
	return nil
}

func (tx *memTx) FindLiveByOwner(_ context.Context, ownerID string, now time.Time) ([]domain.Reservation, error) {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	var out []domain.Reservation
	for id, r := range tx.store.reservations {
		if r.OwnerID != ownerID || !r.IsLive(now) {
			continue
		}
		if holder, busy := tx.store.held[id]; busy && holder != tx.id {
			continue
		}
		if _, gone := tx.deletes[id]; gone {
			continue
		}
		tx.store.held[id] = tx.id
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (tx *memTx) DecrementStock(ctx context.Context, itemID int64, amount int) error {
	item, err := tx.LockStockItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.PhysicalStock < amount {
		return fmt.Errorf("variant %d: decrement %d from %d: %w", itemID, amount, item.PhysicalStock, domain.ErrStockConflict)
	}
	tx.deltas[itemID] -= amount
	return nil
}

func (tx *memTx) DeleteReservation(_ context.Context, id uuid.UUID) (bool, error) {
	if _, gone := tx.deletes[id]; gone {
		return false, nil
	}
	tx.store.mu.Lock()
	_, exists := tx.store.reservations[id]
	tx.store.mu.Unlock()
	if !exists {
		return false, nil
	}
	tx.deletes[id] = struct{}{}
	return true, nil
}

func (tx *memTx) commit() error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()

	for itemID, delta := range tx.deltas {
		item := tx.store.items[itemID]
		item.PhysicalStock += delta
		tx.store.items[itemID] = item
	}
	for id := range tx.deletes {
		delete(tx.store.reservations, id)
	}
	for _, r := range tx.inserts {
		tx.store.reservations[r.ID] = r
	}
	return nil
}

// release drops reservation holds and item locks whether or not the commit happened.
func (tx *memTx) release() {
	tx.store.mu.Lock()
	for id, holder := range tx.store.held {
		if holder == tx.id {
			delete(tx.store.held, id)
		}
	}
	tx.store.mu.Unlock()

	for itemID, lock := range tx.locked {
		<-lock
		delete(tx.locked, itemID)
	}
}
