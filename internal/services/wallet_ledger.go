package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

const walletTransactionIDPrefix = "wtx_"

// WalletLedgerDeps bundles the collaborators required to construct the wallet ledger.
type WalletLedgerDeps struct {
	Wallets     repositories.WalletRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type walletLedger struct {
	wallets repositories.WalletRepository
	clock   func() time.Time
	newID   func() string
	logger  func(context.Context, string, map[string]any)
}

// NewWalletLedger wires the wallet ledger over the repository's atomic apply.
func NewWalletLedger(deps WalletLedgerDeps) (WalletLedger, error) {
	if deps.Wallets == nil {
		return nil, errors.New("wallet ledger: wallet repository is required")
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
	return &walletLedger{
		wallets: deps.Wallets,
		clock:   func() time.Time { return clock().UTC() },
		newID:   idGen,
		logger:  logger,
	}, nil
}

func (l *walletLedger) Credit(ctx context.Context, cmd WalletEntryCommand) (WalletTransaction, error) {
	return l.apply(ctx, domain.WalletTransactionCredit, cmd)
}

func (l *walletLedger) Debit(ctx context.Context, cmd WalletEntryCommand) (WalletTransaction, error) {
	return l.apply(ctx, domain.WalletTransactionDebit, cmd)
}

func (l *walletLedger) apply(ctx context.Context, kind domain.WalletTransactionType, cmd WalletEntryCommand) (WalletTransaction, error) {
	txn, err := l.newTransaction(kind, cmd)
	if err != nil {
		return WalletTransaction{}, err
	}
	if _, err := l.wallets.Apply(ctx, txn); err != nil {
		mapped := mapRepositoryError("wallet."+string(kind), err)
		if errors.Is(mapped, ErrInvariantViolation) {
			l.logger(ctx, "wallet.invariant.violation", map[string]any{
				"userID": txn.UserID,
				"type":   string(kind),
				"amount": txn.Amount,
				"error":  err.Error(),
			})
		}
		return WalletTransaction{}, mapped
	}
	return txn, nil
}

func (l *walletLedger) newTransaction(kind domain.WalletTransactionType, cmd WalletEntryCommand) (WalletTransaction, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return WalletTransaction{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if cmd.Amount <= 0 {
		return WalletTransaction{}, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	}
	return WalletTransaction{
		ID:          walletTransactionIDPrefix + l.newID(),
		UserID:      userID,
		Type:        kind,
		Amount:      cmd.Amount,
		Description: strings.TrimSpace(cmd.Description),
		OrderID:     strings.TrimSpace(cmd.OrderID),
		CreatedAt:   l.clock(),
	}, nil
}

// GetWallet returns the wallet, or an empty wallet for users that never had a movement.
func (l *walletLedger) GetWallet(ctx context.Context, userID string) (Wallet, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Wallet{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	wallet, err := l.wallets.Get(ctx, userID)
	if err != nil {
		if isRepoNotFound(err) {
			return Wallet{UserID: userID}, nil
		}
		return Wallet{}, mapRepositoryError("wallet.get", err)
	}
	return wallet, nil
}

func (l *walletLedger) ListTransactions(ctx context.Context, userID string, page Pagination) (domain.CursorPage[WalletTransaction], error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.CursorPage[WalletTransaction]{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	result, err := l.wallets.ListTransactions(ctx, userID, page)
	if err != nil {
		return domain.CursorPage[WalletTransaction]{}, mapRepositoryError("wallet.transactions", err)
	}
	return result, nil
}

// newRefundCredit builds the wallet credit issued for a refund. It is persisted by the order
// repository together with the order mutation.
func newRefundCredit(id string, order domain.Order, amount int64, description string, at time.Time) domain.WalletTransaction {
	return domain.WalletTransaction{
		ID:          walletTransactionIDPrefix + id,
		UserID:      order.UserID,
		Type:        domain.WalletTransactionCredit,
		Amount:      amount,
		Description: description,
		OrderID:     order.ID,
		CreatedAt:   at,
	}
}
