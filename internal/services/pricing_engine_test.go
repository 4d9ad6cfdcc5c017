package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories/memory"
)

func TestEffectivePriceSelection(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	product := domain.Product{ID: "prod_a", CategoryID: "cat_1", BasePrice: 100000}

	window := func(id string, kind domain.OfferKind, pct int, start, end time.Time) domain.Offer {
		offer := domain.Offer{ID: id, Kind: kind, DiscountPercent: pct, StartsAt: start, EndsAt: end, Status: domain.OfferStatusActive}
		if kind == domain.OfferKindProduct {
			offer.ProductIDs = []string{"prod_a"}
		} else {
			offer.CategoryID = "cat_1"
		}
		return offer
	}
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	tests := []struct {
		name      string
		offers    []domain.Offer
		wantPrice int64
		wantOffer string
	}{
		{name: "no offers keeps base price", wantPrice: 100000},
		{
			name:      "category offer applies",
			offers:    []domain.Offer{window("off_cat", domain.OfferKindCategory, 20, before, after)},
			wantPrice: 80000,
			wantOffer: "off_cat",
		},
		{
			name: "product offer beats larger category offer",
			offers: []domain.Offer{
				window("off_cat", domain.OfferKindCategory, 50, before, after),
				window("off_prod", domain.OfferKindProduct, 10, before, after),
			},
			wantPrice: 90000,
			wantOffer: "off_prod",
		},
		{
			name: "expired product offer is not a candidate",
			offers: []domain.Offer{
				window("off_cat", domain.OfferKindCategory, 50, before, after),
				window("off_prod", domain.OfferKindProduct, 10, before.Add(-time.Hour), before),
			},
			wantPrice: 50000,
			wantOffer: "off_cat",
		},
		{
			name:      "end of window is exclusive",
			offers:    []domain.Offer{window("off_prod", domain.OfferKindProduct, 10, before, now)},
			wantPrice: 100000,
		},
		{
			name: "inactive offer ignored",
			offers: []domain.Offer{func() domain.Offer {
				o := window("off_prod", domain.OfferKindProduct, 10, before, after)
				o.Status = domain.OfferStatusInactive
				return o
			}()},
			wantPrice: 100000,
		},
		{
			name: "other category does not apply",
			offers: []domain.Offer{func() domain.Offer {
				o := window("off_cat", domain.OfferKindCategory, 10, before, after)
				o.CategoryID = "cat_2"
				return o
			}()},
			wantPrice: 100000,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			quote := EffectivePrice(product, tc.offers, now)
			if quote.Price != tc.wantPrice {
				t.Fatalf("expected price %d, got %d", tc.wantPrice, quote.Price)
			}
			if quote.OfferID != tc.wantOffer {
				t.Fatalf("expected offer %q, got %q", tc.wantOffer, quote.OfferID)
			}
		})
	}
}

func TestEffectivePriceRoundsHalfUp(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	product := domain.Product{ID: "prod_a", BasePrice: 999}
	offer := domain.Offer{
		ID: "off", Kind: domain.OfferKindProduct, ProductIDs: []string{"prod_a"}, DiscountPercent: 15,
		StartsAt: now.Add(-time.Minute), EndsAt: now.Add(time.Minute), Status: domain.OfferStatusActive,
	}
	// 999 * 0.85 = 849.15
	if got := EffectivePrice(product, []domain.Offer{offer}, now).Price; got != 849 {
		t.Fatalf("expected 849, got %d", got)
	}
	product.BasePrice = 1010
	offer.DiscountPercent = 5
	// 1010 * 0.95 = 959.5
	if got := EffectivePrice(product, []domain.Offer{offer}, now).Price; got != 960 {
		t.Fatalf("expected 960, got %d", got)
	}
}

func TestPricingEngineQuoteProduct(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	store := memory.NewStore()
	if _, err := store.Products().Upsert(ctx, domain.Product{ID: "prod_a", CategoryID: "cat_1", BasePrice: 5000, Active: true}); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if err := store.Offers().Insert(ctx, domain.Offer{
		ID: "off_cat", Kind: domain.OfferKindCategory, CategoryID: "cat_1", DiscountPercent: 10,
		StartsAt: now.Add(-time.Hour), EndsAt: now.Add(time.Hour), Status: domain.OfferStatusActive,
	}); err != nil {
		t.Fatalf("seed offer: %v", err)
	}

	engine, err := NewPricingEngine(PricingEngineDeps{Products: store.Products(), Offers: store.Offers(), Clock: func() time.Time { return now }})
	if err != nil {
		t.Fatalf("new pricing engine: %v", err)
	}

	quote, err := engine.QuoteProduct(ctx, "prod_a")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if quote.Price != 4500 || quote.OfferID != "off_cat" {
		t.Fatalf("unexpected quote %+v", quote)
	}

	if _, err := engine.QuoteProduct(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
