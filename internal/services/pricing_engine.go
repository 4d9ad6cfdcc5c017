package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

// PricingEngineDeps wires the catalog repositories consulted for quotes.
type PricingEngineDeps struct {
	Products repositories.ProductRepository
	Offers   repositories.OfferRepository
	Clock    func() time.Time
}

// PricingEngine resolves effective unit prices.
type PricingEngine struct {
	products repositories.ProductRepository
	offers   repositories.OfferRepository
	now      func() time.Time
}

var _ PricingService = (*PricingEngine)(nil)

// NewPricingEngine constructs a pricing engine validating required dependencies.
func NewPricingEngine(deps PricingEngineDeps) (*PricingEngine, error) {
	if deps.Products == nil {
		return nil, errors.New("pricing engine: product repository is required")
	}
	if deps.Offers == nil {
		return nil, errors.New("pricing engine: offer repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &PricingEngine{
		products: deps.Products,
		offers:   deps.Offers,
		now: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// QuoteProduct loads the product and the offers active now and returns its effective price.
func (e *PricingEngine) QuoteProduct(ctx context.Context, productID string) (PriceQuote, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return PriceQuote{}, fmt.Errorf("%w: product id is required", ErrInvalidInput)
	}
	product, err := e.products.Get(ctx, productID)
	if err != nil {
		return PriceQuote{}, mapRepositoryError("pricing.product", err)
	}
	now := e.now()
	offers, err := e.offers.ListActive(ctx, now)
	if err != nil {
		return PriceQuote{}, mapRepositoryError("pricing.offers", err)
	}
	return EffectivePrice(product, offers, now), nil
}

// EffectivePrice applies the best offer for the product at the given instant. Offers outside
// their window are never candidates. A product-scoped offer always beats a category-scoped one;
// within a scope the largest discount wins, then the earliest start, then the lowest id.
func EffectivePrice(product domain.Product, offers []domain.Offer, at time.Time) PriceQuote {
	quote := PriceQuote{
		ProductID: product.ID,
		BasePrice: product.BasePrice,
		Price:     product.BasePrice,
		QuotedAt:  at,
	}

	var best *domain.Offer
	for i := range offers {
		offer := &offers[i]
		if !offer.ActiveAt(at) || !offer.AppliesTo(product) {
			continue
		}
		if best == nil || betterOffer(*offer, *best) {
			best = offer
		}
	}
	if best == nil {
		return quote
	}

	quote.Price = domain.DiscountedPrice(product.BasePrice, best.DiscountPercent)
	quote.DiscountPercent = best.DiscountPercent
	quote.OfferID = best.ID
	quote.OfferKind = best.Kind
	return quote
}

func betterOffer(candidate, current domain.Offer) bool {
	if specificity(candidate.Kind) != specificity(current.Kind) {
		return specificity(candidate.Kind) > specificity(current.Kind)
	}
	if candidate.DiscountPercent != current.DiscountPercent {
		return candidate.DiscountPercent > current.DiscountPercent
	}
	if !candidate.StartsAt.Equal(current.StartsAt) {
		return candidate.StartsAt.Before(current.StartsAt)
	}
	return candidate.ID < current.ID
}

func specificity(kind domain.OfferKind) int {
	switch kind {
	case domain.OfferKindProduct:
		return 2
	case domain.OfferKindCategory:
		return 1
	}
	return 0
}
