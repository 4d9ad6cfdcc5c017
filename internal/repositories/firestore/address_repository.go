package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
)

const addressCollectionPattern = "users/%s/addresses"

// AddressRepository persists user addresses under users/{uid}/addresses.
type AddressRepository struct {
	provider *pfirestore.Provider
}

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{provider: provider}, nil
}

// List returns the address book ordered by document ID.
func (r *AddressRepository) List(ctx context.Context, userID string) ([]domain.Address, error) {
	coll, err := r.collection(userID)
	if err != nil {
		return nil, err
	}
	docs, err := coll.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy(firestore.DocumentID, firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Address, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

func (r *AddressRepository) Get(ctx context.Context, userID, addressID string) (domain.Address, error) {
	coll, err := r.collection(userID)
	if err != nil {
		return domain.Address{}, err
	}
	doc, err := coll.Get(ctx, addressID)
	if err != nil {
		return domain.Address{}, err
	}
	return doc.toDomain(addressID), nil
}

func (r *AddressRepository) Upsert(ctx context.Context, userID string, address domain.Address) (domain.Address, error) {
	coll, err := r.collection(userID)
	if err != nil {
		return domain.Address{}, err
	}
	if err := coll.Set(ctx, address.ID, newAddressDocument(address)); err != nil {
		return domain.Address{}, err
	}
	return address, nil
}

func (r *AddressRepository) collection(userID string) (*pfirestore.Collection[addressDocument], error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.Contains(userID, "/") {
		return nil, fmt.Errorf("address repository: invalid user id %q", userID)
	}
	return pfirestore.NewCollection[addressDocument](r.provider, fmt.Sprintf(addressCollectionPattern, userID)), nil
}
