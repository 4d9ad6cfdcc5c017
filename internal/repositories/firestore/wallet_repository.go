package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/platform/pagination"
	"github.com/hanko-field/storefront/internal/repositories"
)

const (
	walletsCollection             = "wallets"
	walletTransactionsPattern     = "wallets/%s/transactions"
	walletTransactionsSubcollName = "transactions"
)

// WalletRepository keeps wallets/{uid} balances in lock-step with wallets/{uid}/transactions.
type WalletRepository struct {
	provider *pfirestore.Provider
	wallets  *pfirestore.Collection[walletDocument]
}

// NewWalletRepository constructs a Firestore-backed wallet repository.
func NewWalletRepository(provider *pfirestore.Provider) (*WalletRepository, error) {
	if provider == nil {
		return nil, errors.New("wallet repository requires firestore provider")
	}
	return &WalletRepository{
		provider: provider,
		wallets:  pfirestore.NewCollection[walletDocument](provider, walletsCollection),
	}, nil
}

func (r *WalletRepository) Get(ctx context.Context, userID string) (domain.Wallet, error) {
	doc, err := r.wallets.Get(ctx, userID)
	if err != nil {
		return domain.Wallet{}, err
	}
	return domain.Wallet{UserID: userID, Balance: doc.Balance, CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt}, nil
}

func (r *WalletRepository) Apply(ctx context.Context, txn domain.WalletTransaction) (domain.Wallet, error) {
	var wallet domain.Wallet
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ledger := newWalletLedger(r.wallets)
		if err := ledger.read(ctx, tx, txn.UserID); err != nil {
			return err
		}
		if err := ledger.stage(txn); err != nil {
			return err
		}
		if err := ledger.write(tx); err != nil {
			return err
		}
		wallet = ledger.wallet(txn.UserID)
		return nil
	})
	if err != nil {
		return domain.Wallet{}, pfirestore.WrapError("wallets.apply", err)
	}
	return wallet, nil
}

// ListTransactions pages the ledger newest first using (createdAt, id) cursors.
func (r *WalletRepository) ListTransactions(ctx context.Context, userID string, page domain.Pagination) (domain.CursorPage[domain.WalletTransaction], error) {
	cursor, err := pagination.DecodeToken(page.PageToken)
	if err != nil {
		return domain.CursorPage[domain.WalletTransaction]{}, err
	}
	size := pagination.ClampPageSize(page.PageSize)
	coll, err := transactionsCollection(r.provider, userID)
	if err != nil {
		return domain.CursorPage[domain.WalletTransaction]{}, err
	}
	docs, err := coll.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(size + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.WalletTransaction]{}, err
	}

	out := domain.CursorPage[domain.WalletTransaction]{Items: make([]domain.WalletTransaction, 0, len(docs))}
	for _, doc := range docs {
		if len(out.Items) == size {
			last := out.Items[size-1]
			out.NextPageToken, err = pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
			if err != nil {
				return domain.CursorPage[domain.WalletTransaction]{}, err
			}
			break
		}
		out.Items = append(out.Items, doc.Data.toDomain(userID, doc.ID))
	}
	return out, nil
}

func transactionsCollection(provider *pfirestore.Provider, userID string) (*pfirestore.Collection[walletTransactionDocument], error) {
	userID = strings.TrimSpace(userID)
	if userID == "" || strings.Contains(userID, "/") {
		return nil, fmt.Errorf("wallet repository: invalid user id %q", userID)
	}
	return pfirestore.NewCollection[walletTransactionDocument](provider, fmt.Sprintf(walletTransactionsPattern, userID)), nil
}

// walletLedger stages wallet writes inside a transaction. Firestore demands every read before the
// first write, so callers read all wallets up front, stage transactions, then write.
type walletLedger struct {
	wallets *pfirestore.Collection[walletDocument]
	refs    map[string]*firestore.DocumentRef
	docs    map[string]walletDocument
	staged  []domain.WalletTransaction
}

func newWalletLedger(wallets *pfirestore.Collection[walletDocument]) *walletLedger {
	return &walletLedger{
		wallets: wallets,
		refs:    make(map[string]*firestore.DocumentRef),
		docs:    make(map[string]walletDocument),
	}
}

func (l *walletLedger) read(ctx context.Context, tx *firestore.Transaction, userID string) error {
	if _, ok := l.refs[userID]; ok {
		return nil
	}
	ref, err := l.wallets.Ref(ctx, userID)
	if err != nil {
		return err
	}
	doc, _, err := pfirestore.GetTx[walletDocument](tx, ref)
	if err != nil {
		return err
	}
	l.refs[userID] = ref
	l.docs[userID] = doc
	return nil
}

// stage validates txn against the staged balance and applies it in memory.
func (l *walletLedger) stage(txn domain.WalletTransaction) error {
	if strings.TrimSpace(txn.ID) == "" {
		return errors.New("wallet repository: transaction id is required")
	}
	if txn.Amount <= 0 {
		return repositories.NewWalletError(repositories.WalletErrorInvalidAmount, txn.UserID, "amount must be > 0")
	}
	doc, ok := l.docs[txn.UserID]
	if !ok {
		return fmt.Errorf("wallet repository: wallet %s was not read before staging", txn.UserID)
	}
	if doc.Balance+txn.Signed() < 0 {
		if txn.Type == domain.WalletTransactionDebit {
			return repositories.NewWalletError(repositories.WalletErrorInsufficientBalance, txn.UserID, "insufficient wallet balance")
		}
		return repositories.NewWalletError(repositories.WalletErrorNegativeBalance, txn.UserID, "balance would become negative")
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = txn.CreatedAt.UTC()
	}
	doc.Balance += txn.Signed()
	doc.UpdatedAt = txn.CreatedAt.UTC()
	l.docs[txn.UserID] = doc
	l.staged = append(l.staged, txn)
	return nil
}

func (l *walletLedger) write(tx *firestore.Transaction) error {
	written := make(map[string]bool)
	for _, txn := range l.staged {
		ref := l.refs[txn.UserID]
		if !written[txn.UserID] {
			if err := tx.Set(ref, l.docs[txn.UserID]); err != nil {
				return err
			}
			written[txn.UserID] = true
		}
		if err := tx.Create(ref.Collection(walletTransactionsSubcollName).Doc(txn.ID), newWalletTransactionDocument(txn)); err != nil {
			return err
		}
	}
	return nil
}

func (l *walletLedger) wallet(userID string) domain.Wallet {
	doc := l.docs[userID]
	return domain.Wallet{UserID: userID, Balance: doc.Balance, CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt}
}
