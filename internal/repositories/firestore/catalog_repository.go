package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/makhaana-store/api/internal/domain"
	pfirestore "github.com/makhaana-store/api/internal/platform/firestore"
)

const variantsCollection = "variants"

type variantDocument struct {
	ProductName   string    `firestore:"productName"`
	FlavourName   string    `firestore:"flavourName"`
	SizeLabel     string    `firestore:"sizeLabel"`
	SKU           string    `firestore:"sku"`
	UnitPrice     int64     `firestore:"unitPrice"`
	MRP           *int64    `firestore:"mrp,omitempty"`
	StockQuantity int64     `firestore:"stockQuantity"`
	InitialStock  int64     `firestore:"initialStock"`
	Active        bool      `firestore:"active"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

func (d variantDocument) toDomain(id string) domain.Variant {
	variant := domain.Variant{
		ID:            id,
		ProductName:   d.ProductName,
		FlavourName:   d.FlavourName,
		SizeLabel:     d.SizeLabel,
		SKU:           d.SKU,
		UnitPrice:     domain.Money(d.UnitPrice),
		StockQuantity: d.StockQuantity,
		InitialStock:  d.InitialStock,
		Active:        d.Active,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
	if d.MRP != nil {
		mrp := domain.Money(*d.MRP)
		variant.MRP = &mrp
	}
	return variant
}

// CatalogRepository reads variant documents and applies admin price edits.
type CatalogRepository struct {
	provider *pfirestore.Provider
	variants *pfirestore.Collection[variantDocument]
}

// NewCatalogRepository constructs a Firestore backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	variants := pfirestore.NewCollection[variantDocument](provider, variantsCollection)
	return &CatalogRepository{provider: provider, variants: variants}, nil
}

// GetVariant loads a single variant by id.
func (r *CatalogRepository) GetVariant(ctx context.Context, variantID string) (domain.Variant, error) {
	if r == nil || r.variants == nil {
		return domain.Variant{}, errors.New("catalog repository not initialised")
	}
	doc, err := r.variants.Get(ctx, strings.TrimSpace(variantID))
	if err != nil {
		return domain.Variant{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// ListActiveVariants batch-loads the requested ids and keeps only active
// variants. Missing or inactive ids are absent from the result.
func (r *CatalogRepository) ListActiveVariants(ctx context.Context, variantIDs []string) ([]domain.Variant, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("catalog repository not initialised")
	}
	if len(variantIDs) == 0 {
		return nil, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	refs := make([]*firestore.DocumentRef, 0, len(variantIDs))
	for _, id := range variantIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		refs = append(refs, client.Collection(variantsCollection).Doc(id))
	}

	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("variants.getall", err)
	}

	out := make([]domain.Variant, 0, len(snaps))
	for _, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		var doc variantDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode variant %s: %w", snap.Ref.ID, err)
		}
		if !doc.Active {
			continue
		}
		out = append(out, doc.toDomain(snap.Ref.ID))
	}
	return out, nil
}

// ListVariants returns all variants ordered by SKU.
func (r *CatalogRepository) ListVariants(ctx context.Context) ([]domain.Variant, error) {
	if r == nil || r.variants == nil {
		return nil, errors.New("catalog repository not initialised")
	}
	docs, err := r.variants.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("sku", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.Variant, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.Data.toDomain(doc.ID))
	}
	return out, nil
}

// UpdatePrice sets the unit price (and optionally MRP) on a variant.
func (r *CatalogRepository) UpdatePrice(ctx context.Context, variantID string, price domain.Money, mrp *domain.Money) (domain.Variant, error) {
	if r == nil || r.provider == nil {
		return domain.Variant{}, errors.New("catalog repository not initialised")
	}
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return domain.Variant{}, errors.New("catalog update price: variant id is required")
	}
	if price < 0 {
		return domain.Variant{}, errors.New("catalog update price: price must be >= 0")
	}

	var updated variantDocument
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.variants.DocumentRef(ctx, variantID)
		if err != nil {
			return err
		}
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return pfirestore.WrapError("variants.get", err)
			}
			return err
		}
		var doc variantDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode variant %s: %w", variantID, err)
		}
		doc.UnitPrice = int64(price)
		if mrp != nil {
			value := int64(*mrp)
			doc.MRP = &value
		}
		doc.UpdatedAt = time.Now().UTC()
		if err := tx.Set(ref, doc); err != nil {
			return err
		}
		updated = doc
		return nil
	})
	if err != nil {
		return domain.Variant{}, err
	}
	return updated.toDomain(variantID), nil
}
