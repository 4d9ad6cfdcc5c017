package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
)

const cartsCollection = "carts"

// CartRepository stores one cart document per user, keyed by user ID.
type CartRepository struct {
	carts *pfirestore.Collection[cartDocument]
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{carts: pfirestore.NewCollection[cartDocument](provider, cartsCollection)}, nil
}

func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	doc, err := r.carts.Get(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	return doc.toDomain(userID), nil
}

func (r *CartRepository) UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	userID := strings.TrimSpace(cart.UserID)
	if userID == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}
	doc := newCartDocument(cart)
	if err := r.carts.Set(ctx, userID, doc); err != nil {
		return domain.Cart{}, err
	}
	return doc.toDomain(userID), nil
}

// ClearCart overwrites the cart with an empty document rather than deleting it, keeping the
// last-updated timestamp.
func (r *CartRepository) ClearCart(ctx context.Context, userID string, at time.Time) error {
	return r.carts.Set(ctx, userID, cartDocument{Items: []cartItemDocument{}, UpdatedAt: at.UTC()})
}
