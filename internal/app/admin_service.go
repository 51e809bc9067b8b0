package app

import (
	"context"

	"github.com/google/uuid"
	"github.com/tiendafix/stockhold/internal/clock"
	"github.com/tiendafix/stockhold/internal/domain"
)

type VariantRepository interface {
	CreateVariant(ctx context.Context, v domain.Variant) error
	ListVariants(ctx context.Context) ([]domain.Variant, error)
	AddStock(ctx context.Context, variantID string, delta int) (domain.Variant, error)
}

// AdminService seeds the catalog and tops up physical stock.
type AdminService struct {
	repo  VariantRepository
	clock clock.Clock
}

func NewAdminService(repo VariantRepository, clk clock.Clock) *AdminService {
	return &AdminService{
		repo:  repo,
		clock: clk,
	}
}

type CreateVariantInput struct {
	SKU        string
	Name       string
	StockTotal int
}

func (s *AdminService) CreateVariant(ctx context.Context, in CreateVariantInput) (domain.Variant, error) {
	if in.SKU == "" {
		return domain.Variant{}, domain.ErrSKURequired
	}
	if in.Name == "" {
		return domain.Variant{}, domain.ErrVariantNameRequired
	}
	if in.StockTotal < 0 {
		return domain.Variant{}, domain.ErrInvalidStock
	}

	variant := domain.Variant{
		ID:         uuid.NewString(),
		SKU:        in.SKU,
		Name:       in.Name,
		StockTotal: in.StockTotal,
		CreatedAt:  s.clock.Now(),
	}

	if err := s.repo.CreateVariant(ctx, variant); err != nil {
		return domain.Variant{}, err
	}
	return variant, nil
}

func (s *AdminService) ListVariants(ctx context.Context) ([]domain.Variant, error) {
	return s.repo.ListVariants(ctx)
}

type AddStockInput struct {
	VariantID string
	Delta     int
}

func (s *AdminService) AddStock(ctx context.Context, in AddStockInput) (domain.Variant, error) {
	if in.VariantID == "" {
		return domain.Variant{}, domain.ErrInvalidID
	}
	if in.Delta == 0 {
		return domain.Variant{}, domain.ErrInvalidStock
	}
	return s.repo.AddStock(ctx, in.VariantID, in.Delta)
}
