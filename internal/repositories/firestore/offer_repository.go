package firestore

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/repositories"
)

const offersCollection = "offers"

// OfferRepository persists offers and guards the one-active-offer-per-target rule transactionally.
type OfferRepository struct {
	provider *pfirestore.Provider
	offers   *pfirestore.Collection[offerDocument]
}

// NewOfferRepository constructs a Firestore-backed offer repository.
func NewOfferRepository(provider *pfirestore.Provider) (*OfferRepository, error) {
	if provider == nil {
		return nil, errors.New("offer repository requires firestore provider")
	}
	return &OfferRepository{
		provider: provider,
		offers:   pfirestore.NewCollection[offerDocument](provider, offersCollection),
	}, nil
}

func (r *OfferRepository) Get(ctx context.Context, offerID string) (domain.Offer, error) {
	doc, err := r.offers.Get(ctx, offerID)
	if err != nil {
		return domain.Offer{}, err
	}
	return doc.toDomain(offerID), nil
}

// ListActive filters the window in memory because Firestore cannot range over startsAt and
// endsAt in one query.
func (r *OfferRepository) ListActive(ctx context.Context, at time.Time) ([]domain.Offer, error) {
	docs, err := r.offers.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("status", "==", string(domain.OfferStatusActive)).Where("startsAt", "<=", at.UTC())
	})
	if err != nil {
		return nil, err
	}
	var out []domain.Offer
	for _, doc := range docs {
		if offer := doc.Data.toDomain(doc.ID); offer.ActiveAt(at) {
			out = append(out, offer)
		}
	}
	sortOffers(out)
	return out, nil
}

func (r *OfferRepository) List(ctx context.Context, filter repositories.OfferListFilter) ([]domain.Offer, error) {
	docs, err := r.offers.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.Kind != nil {
			q = q.Where("kind", "==", string(*filter.Kind))
		}
		if filter.Status != nil {
			q = q.Where("status", "==", string(*filter.Status))
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Offer, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	sortOffers(out)
	return out, nil
}

func (r *OfferRepository) Insert(ctx context.Context, offer domain.Offer) error {
	return r.write(ctx, "offers.insert", offer, false)
}

func (r *OfferRepository) Update(ctx context.Context, offer domain.Offer) error {
	return r.write(ctx, "offers.update", offer, true)
}

// write reads every offer of the same kind inside the transaction so two admins cannot insert
// overlapping offers concurrently.
func (r *OfferRepository) write(ctx context.Context, op string, offer domain.Offer, mustExist bool) error {
	if strings.TrimSpace(offer.ID) == "" {
		return errors.New("offer repository: offer id is required")
	}
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.offers.Ref(ctx, offer.ID)
		if err != nil {
			return err
		}
		_, found, err := pfirestore.GetTx[offerDocument](tx, ref)
		if err != nil {
			return err
		}
		switch {
		case mustExist && !found:
			return pfirestore.NotFound(op, "offer %s not found", offer.ID)
		case !mustExist && found:
			return pfirestore.Conflict(op, "offer %s already exists", offer.ID)
		}

		base, err := r.offers.Base(ctx)
		if err != nil {
			return err
		}
		siblings, err := pfirestore.DocumentsTx[offerDocument](tx, base.Where("kind", "==", string(offer.Kind)))
		if err != nil {
			return err
		}
		for _, doc := range siblings {
			if offer.Conflicts(doc.Data.toDomain(doc.ID)) {
				return &repositories.OfferOverlapError{OfferID: offer.ID, ConflictingID: doc.ID}
			}
		}
		return tx.Set(ref, newOfferDocument(offer))
	})
	return pfirestore.WrapError(op, err)
}

func sortOffers(offers []domain.Offer) {
	slices.SortFunc(offers, func(a, b domain.Offer) int { return strings.Compare(a.ID, b.ID) })
}
