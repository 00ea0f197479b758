package app

import (
	"context"
	"fmt"

	"reservationservice/internal/config"
	"reservationservice/internal/domain"
	"reservationservice/internal/inventory"
	"reservationservice/internal/storage/memory"
	"reservationservice/internal/storage/postgres"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// backend is what every storage driver provides to the core.
type backend interface {
	inventory.Store
	inventory.TierResolver
}

// setupStorage opens the store selected by STORAGE_DRIVER.
func (c *Container) setupStorage(ctx context.Context) error {
	switch c.config.StorageDriver {
	case config.StoragePostgres:
		pool, err := postgres.Connect(ctx, c.config.DatabaseURL, c.config.DBMaxConns)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		c.pool = pool

		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			return err
		}
		c.store = postgres.NewStore(pool)
		c.logger.Info("Postgres store ready", zap.Int32("maxConns", c.config.DBMaxConns))

	default:
		store := memory.NewStore()
		if err := seedDemoCatalog(store); err != nil {
			return fmt.Errorf("failed to seed memory store: %w", err)
		}
		c.store = store
		c.logger.Info("In-memory store ready with demo catalog")
	}
	return nil
}

// seedDemoCatalog gives the in-memory driver something to sell.
func seedDemoCatalog(store *memory.Store) error {
	items := []domain.StockItem{
		{ID: 1, ProductID: 1, SKU: "LAPT-001", PhysicalStock: 100, BasePrice: decimal.NewFromInt(1000)},
		{ID: 2, ProductID: 1, SKU: "LAPT-001-32GB", PhysicalStock: 25, BasePrice: decimal.NewFromInt(1000), PriceAdjustment: decimal.NewFromInt(150)},
		{ID: 3, ProductID: 2, SKU: "MOUSE-001", PhysicalStock: 500, BasePrice: decimal.RequireFromString("24.99")},
	}
	for _, item := range items {
		if err := store.PutStockItem(item); err != nil {
			return err
		}
	}
	return nil
}
