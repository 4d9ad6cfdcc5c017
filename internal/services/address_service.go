package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/hanko-field/storefront/internal/repositories"
)

const maxAddressesPerUser = 20

var (
	addressPhonePattern   = regexp.MustCompile(`^[0-9+()\-\s]{6,20}$`)
	addressCountryPattern = regexp.MustCompile(`^[A-Z]{2}$`)
	addressPostalPattern  = regexp.MustCompile(`^[0-9A-Za-z\-\s]{3,16}$`)
)

// AddressServiceDeps wires the address book repository.
type AddressServiceDeps struct {
	Addresses   repositories.AddressRepository
	Clock       func() time.Time
	IDGenerator func() string
}

type addressService struct {
	addresses repositories.AddressRepository
	now       func() time.Time
	newID     func() string
}

// NewAddressService constructs the address book service.
func NewAddressService(deps AddressServiceDeps) (AddressService, error) {
	if deps.Addresses == nil {
		return nil, errors.New("address service: address repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	return &addressService{
		addresses: deps.Addresses,
		now:       func() time.Time { return clock().UTC() },
		newID:     idGen,
	}, nil
}

func (s *addressService) ListAddresses(ctx context.Context, userID string) ([]Address, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	list, err := s.addresses.List(ctx, userID)
	if err != nil {
		return nil, mapRepositoryError("address.list", err)
	}
	return list, nil
}

func (s *addressService) UpsertAddress(ctx context.Context, cmd UpsertAddressCommand) (Address, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Address{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	addr, err := sanitizeAddress(cmd.Address)
	if err != nil {
		return Address{}, err
	}

	existing, err := s.addresses.List(ctx, userID)
	if err != nil {
		return Address{}, mapRepositoryError("address.list", err)
	}

	now := s.now()
	addressID := strings.TrimSpace(cmd.AddressID)
	if addressID == "" {
		if len(existing) >= maxAddressesPerUser {
			return Address{}, fmt.Errorf("%w: address book is limited to %d entries", ErrInvalidInput, maxAddressesPerUser)
		}
		addr.ID = "addr_" + strings.ToLower(s.newID())
		addr.CreatedAt = now
		addr.IsDefault = addr.IsDefault || len(existing) == 0
	} else {
		stored, err := s.addresses.Get(ctx, userID, addressID)
		if err != nil {
			return Address{}, mapRepositoryError("address.get", err)
		}
		addr.ID = stored.ID
		addr.CreatedAt = stored.CreatedAt
	}
	addr.UpdatedAt = now

	if addr.IsDefault {
		for _, other := range existing {
			if other.ID == addr.ID || !other.IsDefault {
				continue
			}
			other.IsDefault = false
			other.UpdatedAt = now
			if _, err := s.addresses.Upsert(ctx, userID, other); err != nil {
				return Address{}, mapRepositoryError("address.upsert", err)
			}
		}
	}

	saved, err := s.addresses.Upsert(ctx, userID, addr)
	if err != nil {
		return Address{}, mapRepositoryError("address.upsert", err)
	}
	return saved, nil
}

func sanitizeAddress(addr Address) (Address, error) {
	out := Address{
		Recipient:  strings.TrimSpace(addr.Recipient),
		Line1:      strings.TrimSpace(addr.Line1),
		Line2:      trimOptional(addr.Line2),
		City:       strings.TrimSpace(addr.City),
		State:      trimOptional(addr.State),
		PostalCode: strings.TrimSpace(addr.PostalCode),
		Country:    strings.ToUpper(strings.TrimSpace(addr.Country)),
		Phone:      trimOptional(addr.Phone),
		IsDefault:  addr.IsDefault,
	}
	switch {
	case out.Recipient == "" || utf8.RuneCountInString(out.Recipient) > 200:
		return Address{}, fmt.Errorf("%w: recipient is required", ErrInvalidInput)
	case out.Line1 == "":
		return Address{}, fmt.Errorf("%w: line1 is required", ErrInvalidInput)
	case out.City == "":
		return Address{}, fmt.Errorf("%w: city is required", ErrInvalidInput)
	case !addressCountryPattern.MatchString(out.Country):
		return Address{}, fmt.Errorf("%w: country must be an ISO 3166 alpha-2 code", ErrInvalidInput)
	case !addressPostalPattern.MatchString(out.PostalCode):
		return Address{}, fmt.Errorf("%w: invalid postal code", ErrInvalidInput)
	case out.Phone != nil && !addressPhonePattern.MatchString(*out.Phone):
		return Address{}, fmt.Errorf("%w: invalid phone number", ErrInvalidInput)
	}
	return out, nil
}

func trimOptional(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
