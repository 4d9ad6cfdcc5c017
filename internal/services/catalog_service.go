package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

const maxProductNameLength = 200

// CatalogServiceDeps wires the product repository and stock ledger.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Stock       StockLedger
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	products repositories.ProductRepository
	stock    StockLedger
	now      func() time.Time
	newID    func() string
	logger   func(context.Context, string, map[string]any)
}

// NewCatalogService constructs the product catalog service.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Stock == nil {
		return nil, errors.New("catalog service: stock ledger is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{
		products: deps.Products,
		stock:    deps.Stock,
		now:      func() time.Time { return clock().UTC() },
		newID:    idGen,
		logger:   logger,
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductFilter) (domain.CursorPage[Product], error) {
	page, err := s.products.List(ctx, repositories.ProductListFilter{
		CategoryID: strings.TrimSpace(filter.CategoryID),
		ActiveOnly: filter.ActiveOnly,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Product]{}, mapRepositoryError("catalog.list", err)
	}
	return page, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	product, err := s.products.Get(ctx, productID)
	if err != nil {
		return Product{}, mapRepositoryError("catalog.get", err)
	}
	return product, nil
}

func (s *catalogService) UpsertProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	name := strings.TrimSpace(cmd.Name)
	switch {
	case name == "" || utf8.RuneCountInString(name) > maxProductNameLength:
		return Product{}, fmt.Errorf("%w: product name must be 1-%d characters", ErrInvalidInput, maxProductNameLength)
	case cmd.BasePrice < 0:
		return Product{}, fmt.Errorf("%w: base price must be >= 0", ErrInvalidInput)
	case cmd.InitialStock < 0:
		return Product{}, fmt.Errorf("%w: initial stock must be >= 0", ErrInvalidInput)
	}

	product := Product{
		ID:         strings.TrimSpace(cmd.ProductID),
		Name:       name,
		CategoryID: strings.TrimSpace(cmd.CategoryID),
		BasePrice:  cmd.BasePrice,
		Active:     cmd.Active,
	}
	if product.ID == "" {
		product.ID = "prd_" + strings.ToLower(s.newID())
		product.Stock = cmd.InitialStock
	} else {
		existing, err := s.products.Get(ctx, product.ID)
		switch {
		case err == nil:
			product.Stock = existing.Stock
			product.CreatedAt = existing.CreatedAt
		case isRepoNotFound(err):
			product.Stock = cmd.InitialStock
		default:
			return Product{}, mapRepositoryError("catalog.upsert", err)
		}
	}

	saved, err := s.products.Upsert(ctx, product)
	if err != nil {
		return Product{}, mapRepositoryError("catalog.upsert", err)
	}
	s.logger(ctx, "catalog.product.upserted", map[string]any{"productID": saved.ID, "active": saved.Active})
	return saved, nil
}

// Restock adds qty units through the stock ledger.
func (s *catalogService) Restock(ctx context.Context, productID string, qty int) (Product, error) {
	if qty <= 0 {
		return Product{}, fmt.Errorf("%w: quantity must be > 0", ErrInvalidInput)
	}
	if err := s.stock.Release(ctx, productID, qty); err != nil {
		return Product{}, err
	}
	s.logger(ctx, "catalog.product.restocked", map[string]any{"productID": productID, "quantity": qty})
	return s.GetProduct(ctx, productID)
}
