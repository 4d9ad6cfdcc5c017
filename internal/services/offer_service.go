package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

const offerIDPrefix = "off_"

// OfferServiceDeps bundles dependencies required to construct an OfferService implementation.
type OfferServiceDeps struct {
	Offers      repositories.OfferRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type offerService struct {
	repo  repositories.OfferRepository
	clock func() time.Time
	newID func() string
}

// NewOfferService wires an OfferService backed by the provided repository.
func NewOfferService(deps OfferServiceDeps) (OfferService, error) {
	if deps.Offers == nil {
		return nil, errors.New("offer service: offer repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &offerService{
		repo:  deps.Offers,
		clock: func() time.Time { return clock().UTC() },
		newID: idGen,
	}, nil
}

func (s *offerService) CreateOffer(ctx context.Context, cmd UpsertOfferCommand) (Offer, error) {
	offer, err := buildOffer(cmd)
	if err != nil {
		return Offer{}, err
	}
	now := s.clock()
	offer.ID = offerIDPrefix + s.newID()
	offer.CreatedAt = now
	offer.UpdatedAt = now
	if err := s.repo.Insert(ctx, offer); err != nil {
		return Offer{}, mapRepositoryError("offer.create", err)
	}
	return offer, nil
}

func (s *offerService) UpdateOffer(ctx context.Context, cmd UpsertOfferCommand) (Offer, error) {
	offerID := strings.TrimSpace(cmd.OfferID)
	if offerID == "" {
		return Offer{}, fmt.Errorf("%w: offer id is required", ErrInvalidInput)
	}
	existing, err := s.repo.Get(ctx, offerID)
	if err != nil {
		return Offer{}, mapRepositoryError("offer.get", err)
	}
	offer, err := buildOffer(cmd)
	if err != nil {
		return Offer{}, err
	}
	offer.ID = existing.ID
	offer.CreatedAt = existing.CreatedAt
	offer.UpdatedAt = s.clock()
	if err := s.repo.Update(ctx, offer); err != nil {
		return Offer{}, mapRepositoryError("offer.update", err)
	}
	return offer, nil
}

func (s *offerService) DeactivateOffer(ctx context.Context, offerID string) (Offer, error) {
	offer, err := s.GetOffer(ctx, offerID)
	if err != nil {
		return Offer{}, err
	}
	if offer.Status == domain.OfferStatusInactive {
		return offer, nil
	}
	offer.Status = domain.OfferStatusInactive
	offer.UpdatedAt = s.clock()
	if err := s.repo.Update(ctx, offer); err != nil {
		return Offer{}, mapRepositoryError("offer.deactivate", err)
	}
	return offer, nil
}

func (s *offerService) GetOffer(ctx context.Context, offerID string) (Offer, error) {
	offerID = strings.TrimSpace(offerID)
	if offerID == "" {
		return Offer{}, fmt.Errorf("%w: offer id is required", ErrInvalidInput)
	}
	offer, err := s.repo.Get(ctx, offerID)
	if err != nil {
		return Offer{}, mapRepositoryError("offer.get", err)
	}
	return offer, nil
}

func (s *offerService) ListOffers(ctx context.Context, filter OfferListFilter) ([]Offer, error) {
	offers, err := s.repo.List(ctx, repositories.OfferListFilter{Kind: filter.Kind, Status: filter.Status})
	if err != nil {
		return nil, mapRepositoryError("offer.list", err)
	}
	return offers, nil
}

func buildOffer(cmd UpsertOfferCommand) (Offer, error) {
	if cmd.DiscountPercent < 0 || cmd.DiscountPercent > 100 {
		return Offer{}, fmt.Errorf("%w: discount percent must be between 0 and 100", ErrInvalidInput)
	}
	if cmd.StartsAt.IsZero() || cmd.EndsAt.IsZero() || !cmd.StartsAt.Before(cmd.EndsAt) {
		return Offer{}, fmt.Errorf("%w: offer window must satisfy start < end", ErrInvalidInput)
	}

	offer := Offer{
		Name:            strings.TrimSpace(cmd.Name),
		Kind:            cmd.Kind,
		DiscountPercent: cmd.DiscountPercent,
		StartsAt:        cmd.StartsAt.UTC(),
		EndsAt:          cmd.EndsAt.UTC(),
		Status:          domain.OfferStatusInactive,
	}
	if cmd.Active {
		offer.Status = domain.OfferStatusActive
	}

	switch cmd.Kind {
	case domain.OfferKindProduct:
		ids := make([]string, 0, len(cmd.ProductIDs))
		for _, id := range cmd.ProductIDs {
			id = strings.TrimSpace(id)
			if id != "" && !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return Offer{}, fmt.Errorf("%w: product offer requires at least one product id", ErrInvalidInput)
		}
		slices.Sort(ids)
		offer.ProductIDs = ids
	case domain.OfferKindCategory:
		offer.CategoryID = strings.TrimSpace(cmd.CategoryID)
		if offer.CategoryID == "" {
			return Offer{}, fmt.Errorf("%w: category offer requires a category id", ErrInvalidInput)
		}
	default:
		return Offer{}, fmt.Errorf("%w: unsupported offer kind %q", ErrInvalidInput, cmd.Kind)
	}
	return offer, nil
}
