package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reservationservice/internal/domain"
	"reservationservice/internal/inventory"
	"reservationservice/internal/pricing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Store implements the reservation store on Postgres. Item locks are row locks
// taken with SELECT ... FOR UPDATE and released by COMMIT or ROLLBACK.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var (
	_ inventory.Store        = (*Store)(nil)
	_ inventory.TierResolver = (*Store)(nil)
)

// Money columns travel as text so decimal values keep their exact digits.
const selectStockItem = `
SELECT v.id, v.product_id, v.sku, v.stock_quantity, p.base_price::text, v.price_adjustment::text
FROM variants v
JOIN products p ON p.id = v.product_id
WHERE v.id = $1`

const selectReservation = `
SELECT id::text, variant_id, COALESCE(owner_id, ''), cart_id, quantity,
       unit_price::text, price_snapshot::text, expires_at, created_at
FROM reservations`

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx inventory.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *Store) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM reservations WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired reservations: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Store) GetStockItem(ctx context.Context, itemID int64) (domain.StockItem, error) {
	return scanStockItem(s.pool.QueryRow(ctx, selectStockItem, itemID))
}

// TierFor reads customer_tiers; owners without a row are standard.
func (s *Store) TierFor(ctx context.Context, ownerID string) (string, error) {
	var tier string
	err := s.pool.QueryRow(ctx, `SELECT tier FROM customer_tiers WHERE owner_id = $1`, ownerID).Scan(&tier)
	if errors.Is(err, pgx.ErrNoRows) {
		return pricing.TierStandard, nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup tier: %w", err)
	}
	return tier, nil
}

// SetTier upserts the pricing tier of a customer.
func (s *Store) SetTier(ctx context.Context, ownerID, tier string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO customer_tiers (owner_id, tier) VALUES ($1, $2)
		ON CONFLICT (owner_id) DO UPDATE SET tier = EXCLUDED.tier`, ownerID, tier)
	if err != nil {
		return fmt.Errorf("set tier: %w", err)
	}
	return nil
}

// CreateProduct inserts a product and returns its id.
func (s *Store) CreateProduct(ctx context.Context, title string, basePrice decimal.Decimal) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO products (title, base_price) VALUES ($1, $2::numeric) RETURNING id`,
		title, basePrice.String(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create product: %w", err)
	}
	return id, nil
}

// CreateVariant inserts a sellable variant of an existing product and returns its id.
func (s *Store) CreateVariant(ctx context.Context, item domain.StockItem) (int64, error) {
	if item.PhysicalStock < 0 {
		return 0, fmt.Errorf("variant %s: physical stock must not be negative", item.SKU)
	}
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO variants (product_id, sku, price_adjustment, stock_quantity)
		VALUES ($1, $2, $3::numeric, $4) RETURNING id`,
		item.ProductID, item.SKU, item.PriceAdjustment.String(), item.PhysicalStock,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create variant: %w", err)
	}
	return id, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockStockItem(ctx context.Context, itemID int64) (domain.StockItem, error) {
	return scanStockItem(t.tx.QueryRow(ctx, selectStockItem+` FOR UPDATE OF v`, itemID))
}

func (t *pgTx) SumLiveQuantity(ctx context.Context, itemID int64, now time.Time) (int, error) {
	var total int64
	err := t.tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(quantity), 0) FROM reservations WHERE variant_id = $1 AND expires_at > $2`,
		itemID, now,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum live reservations: %w", err)
	}
	return int(total), nil
}

func (t *pgTx) InsertReservation(ctx context.Context, r *domain.Reservation) error {
	var owner *string
	if r.OwnerID != "" {
		owner = &r.OwnerID
	}
	_, err := t.tx.Exec(ctx, `
		INSERT INTO reservations
			(id, variant_id, owner_id, cart_id, quantity, unit_price, price_snapshot, expires_at, created_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9)`,
		r.ID.String(), r.ItemID, owner, r.CartID, r.Quantity,
		r.UnitPrice.String(), r.PriceSnapshot.String(), r.ExpiresAt, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (t *pgTx) FindLiveByOwner(ctx context.Context, ownerID string, now time.Time) ([]domain.Reservation, error) {
	rows, err := t.tx.Query(ctx,
		selectReservation+` WHERE owner_id = $1 AND expires_at > $2 ORDER BY created_at FOR UPDATE`,
		ownerID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("find live reservations: %w", err)
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("find live reservations: %w", err)
	}
	return out, nil
}

func (t *pgTx) DecrementStock(ctx context.Context, itemID int64, amount int) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE variants SET stock_quantity = stock_quantity - $2 WHERE id = $1 AND stock_quantity >= $2`,
		itemID, amount,
	)
	if err != nil {
		return fmt.Errorf("decrement stock: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("variant %d: decrement %d: %w", itemID, amount, domain.ErrStockConflict)
	}
	return nil
}

func (t *pgTx) DeleteReservation(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := t.tx.Exec(ctx, `DELETE FROM reservations WHERE id = $1::uuid`, id.String())
	if err != nil {
		return false, fmt.Errorf("delete reservation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanStockItem(row pgx.Row) (domain.StockItem, error) {
	var (
		item      domain.StockItem
		base, adj string
	)
	err := row.Scan(&item.ID, &item.ProductID, &item.SKU, &item.PhysicalStock, &base, &adj)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.StockItem{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.StockItem{}, fmt.Errorf("load variant: %w", err)
	}
	if item.BasePrice, err = decimal.NewFromString(base); err != nil {
		return domain.StockItem{}, fmt.Errorf("variant %d base price: %w", item.ID, err)
	}
	if item.PriceAdjustment, err = decimal.NewFromString(adj); err != nil {
		return domain.StockItem{}, fmt.Errorf("variant %d price adjustment: %w", item.ID, err)
	}
	return item, nil
}

func scanReservation(row pgx.Row) (domain.Reservation, error) {
	var (
		r               domain.Reservation
		id, unit, total string
	)
	err := row.Scan(&id, &r.ItemID, &r.OwnerID, &r.CartID, &r.Quantity, &unit, &total, &r.ExpiresAt, &r.CreatedAt)
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("scan reservation: %w", err)
	}
	if r.ID, err = uuid.Parse(id); err != nil {
		return domain.Reservation{}, fmt.Errorf("reservation id: %w", err)
	}
	if r.UnitPrice, err = decimal.NewFromString(unit); err != nil {
		return domain.Reservation{}, fmt.Errorf("reservation %s unit price: %w", id, err)
	}
	if r.PriceSnapshot, err = decimal.NewFromString(total); err != nil {
		return domain.Reservation{}, fmt.Errorf("reservation %s snapshot: %w", id, err)
	}
	return r, nil
}
