package firestore

import (
	"context"
	"errors"

	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

// Registry wires every Firestore repository around one shared provider.
type Registry struct {
	provider  *pfirestore.Provider
	products  *ProductRepository
	offers    *OfferRepository
	coupons   *CouponRepository
	carts     *CartRepository
	addresses *AddressRepository
	orders    *OrderRepository
	wallets   *WalletRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry builds the Firestore repositories. Closing the registry closes the provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry requires provider")
	}
	reg := &Registry{provider: provider}
	var err error
	if reg.products, err = NewProductRepository(provider); err != nil {
		return nil, err
	}
	if reg.offers, err = NewOfferRepository(provider); err != nil {
		return nil, err
	}
	if reg.coupons, err = NewCouponRepository(provider); err != nil {
		return nil, err
	}
	if reg.carts, err = NewCartRepository(provider); err != nil {
		return nil, err
	}
	if reg.addresses, err = NewAddressRepository(provider); err != nil {
		return nil, err
	}
	if reg.orders, err = NewOrderRepository(provider); err != nil {
		return nil, err
	}
	if reg.wallets, err = NewWalletRepository(provider); err != nil {
		return nil, err
	}
	return reg, nil
}

func (r *Registry) Close(ctx context.Context) error { return r.provider.Close(ctx) }

func (r *Registry) Products() repositories.ProductRepository  { return r.products }
func (r *Registry) Offers() repositories.OfferRepository      { return r.offers }
func (r *Registry) Coupons() repositories.CouponRepository    { return r.coupons }
func (r *Registry) Carts() repositories.CartRepository        { return r.carts }
func (r *Registry) Addresses() repositories.AddressRepository { return r.addresses }
func (r *Registry) Orders() repositories.OrderRepository      { return r.orders }
func (r *Registry) Wallets() repositories.WalletRepository    { return r.wallets }
