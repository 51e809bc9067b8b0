package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tiendafix/stockhold/internal/domain"
)

// VariantRepository covers the administrative side of the catalog: creating
// variants and topping up physical stock. Ledger deltas driven by
// reservations live on ReservationRepository.
type VariantRepository struct {
	pool *pgxpool.Pool
}

func NewVariantRepository(pool *pgxpool.Pool) *VariantRepository {
	return &VariantRepository{pool: pool}
}

func (r *VariantRepository) CreateVariant(ctx context.Context, v domain.Variant) error {
	const stmt = `
INSERT INTO variants (id, sku, name, stock_total, stock_reserved, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, stmt, v.ID, v.SKU, v.Name, v.StockTotal, v.StockReserved, v.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrSKUAlreadyExists
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("create variant: %w", err)
	}
	return nil
}

func (r *VariantRepository) ListVariants(ctx context.Context) ([]domain.Variant, error) {
	const query = `
SELECT id, sku, name, stock_total, stock_reserved, created_at
FROM variants
ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()

	var variants []domain.Variant
	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.ID, &v.SKU, &v.Name, &v.StockTotal, &v.StockReserved, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		variants = append(variants, v)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate variants: %w", rows.Err())
	}
	return variants, nil
}

// AddStock applies a delta to stock_total. Negative deltas are allowed for
// corrections but never below the currently reserved amount.
func (r *VariantRepository) AddStock(ctx context.Context, variantID string, delta int) (domain.Variant, error) {
	const stmt = `
UPDATE variants
SET stock_total = stock_total + $2
WHERE id = $1 AND stock_total + $2 >= stock_reserved
RETURNING id, sku, name, stock_total, stock_reserved, created_at`

	var v domain.Variant
	err := r.pool.QueryRow(ctx, stmt, variantID, delta).
		Scan(&v.ID, &v.SKU, &v.Name, &v.StockTotal, &v.StockReserved, &v.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Variant{}, domain.ErrInvalidID
		}
		if err != pgx.ErrNoRows {
			return domain.Variant{}, fmt.Errorf("add stock: %w", err)
		}
		// Missing row and rejected delta both come back as no rows.
		var exists bool
		if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM variants WHERE id = $1)`, variantID).Scan(&exists); err != nil {
			return domain.Variant{}, fmt.Errorf("add stock: %w", err)
		}
		if !exists {
			return domain.Variant{}, domain.ErrVariantNotFound
		}
		return domain.Variant{}, domain.ErrInvalidStock
	}
	return v, nil
}
