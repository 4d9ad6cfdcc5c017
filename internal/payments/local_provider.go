package payments

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// ProviderLocal is the registration key of the in-process provider used outside production.
const ProviderLocal = "local"

// LocalProvider issues intents without contacting a PSP. Payments are settled by posting a
// callback signed with the shared secret.
type LocalProvider struct {
	newID func() string
}

// NewLocalProvider constructs the in-process provider.
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{newID: func() string { return ulid.Make().String() }}
}

func (p *LocalProvider) CreateIntent(_ context.Context, req IntentRequest) (Intent, error) {
	id := "pi_local_" + p.newID()
	return Intent{
		ID:           id,
		Provider:     ProviderLocal,
		ClientSecret: id + "_secret_" + p.newID(),
		Amount:       req.Amount,
		Currency:     req.Currency,
	}, nil
}
