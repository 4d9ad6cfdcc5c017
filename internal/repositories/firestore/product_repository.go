package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storefront/internal/domain"
	pfirestore "github.com/hanko-field/storefront/internal/platform/firestore"
	"github.com/hanko-field/storefront/internal/platform/pagination"
	"github.com/hanko-field/storefront/internal/repositories"
)

const productsCollection = "products"

// ProductRepository persists catalog products. The stock counter lives on the product document
// and is only written inside transactions.
type ProductRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.Collection[productDocument]
	now      func() time.Time
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		provider: provider,
		products: pfirestore.NewCollection[productDocument](provider, productsCollection),
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *ProductRepository) Get(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return doc.toDomain(productID), nil
}

// List orders products by document ID; the page token carries the last ID returned.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductListFilter) (domain.CursorPage[domain.Product], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}
	size := pagination.ClampPageSize(filter.Pagination.PageSize)

	docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		if category := strings.TrimSpace(filter.CategoryID); category != "" {
			q = q.Where("categoryId", "==", category)
		}
		if filter.ActiveOnly {
			q = q.Where("active", "==", true)
		}
		q = q.OrderBy(firestore.DocumentID, firestore.Asc)
		if cursor.ID != "" {
			q = q.StartAfter(cursor.ID)
		}
		return q.Limit(size + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.Product]{}, err
	}

	page := domain.CursorPage[domain.Product]{Items: make([]domain.Product, 0, len(docs))}
	for _, doc := range docs {
		if len(page.Items) == size {
			page.NextPageToken, err = pagination.EncodeToken(pagination.Cursor{ID: page.Items[size-1].ID})
			if err != nil {
				return domain.CursorPage[domain.Product]{}, err
			}
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

// Upsert writes catalog fields. CreatedAt and the stock counter survive from the stored copy.
func (r *ProductRepository) Upsert(ctx context.Context, product domain.Product) (domain.Product, error) {
	if strings.TrimSpace(product.ID) == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}
	var saved domain.Product
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.products.Ref(ctx, product.ID)
		if err != nil {
			return err
		}
		stored, found, err := pfirestore.GetTx[productDocument](tx, ref)
		if err != nil {
			return err
		}
		now := r.now()
		if found {
			product.CreatedAt = stored.CreatedAt
			product.Stock = stored.Stock
		} else if product.CreatedAt.IsZero() {
			product.CreatedAt = now
		}
		product.UpdatedAt = now
		saved = product
		return tx.Set(ref, newProductDocument(product))
	})
	if err != nil {
		return domain.Product{}, pfirestore.WrapError("products.upsert", err)
	}
	return saved, nil
}

func (r *ProductRepository) Reserve(ctx context.Context, productID string, qty int) (int, error) {
	return r.adjust(ctx, "products.reserve", productID, qty, -qty)
}

func (r *ProductRepository) Release(ctx context.Context, productID string, qty int) (int, error) {
	return r.adjust(ctx, "products.release", productID, qty, qty)
}

func (r *ProductRepository) adjust(ctx context.Context, op, productID string, qty, delta int) (int, error) {
	if qty <= 0 {
		err := repositories.NewStockError(repositories.StockErrorInvalidQuantity, productID, "quantity must be > 0", nil)
		err.Op = op
		return 0, err
	}
	var remaining int
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.products.Ref(ctx, productID)
		if err != nil {
			return err
		}
		stock, err := readStockTx(tx, ref, productID)
		if err != nil {
			return err
		}
		remaining = stock.Stock
		next, err := applyStockDelta(stock, productID, delta)
		if err != nil {
			return err
		}
		remaining = next
		return tx.Update(ref, []firestore.Update{
			{Path: "stock", Value: next},
			{Path: "updatedAt", Value: r.now()},
		})
	})
	if err != nil {
		var stockErr *repositories.StockError
		if errors.As(err, &stockErr) && stockErr.Op == "" {
			stockErr.Op = op
		}
		return remaining, pfirestore.WrapError(op, err)
	}
	return remaining, nil
}

// readStockTx loads a product inside a transaction, mapping a missing document to a StockError.
func readStockTx(tx *firestore.Transaction, ref *firestore.DocumentRef, productID string) (productDocument, error) {
	doc, found, err := pfirestore.GetTx[productDocument](tx, ref)
	if err != nil {
		return productDocument{}, err
	}
	if !found {
		return productDocument{}, repositories.NewStockError(repositories.StockErrorProductNotFound, productID, fmt.Sprintf("stock %s not found", productID), nil)
	}
	return doc, nil
}

func applyStockDelta(doc productDocument, productID string, delta int) (int, error) {
	if doc.Stock+delta < 0 {
		return doc.Stock, repositories.NewStockError(repositories.StockErrorInsufficient, productID, fmt.Sprintf("insufficient stock for %s", productID), nil)
	}
	return doc.Stock + delta, nil
}
