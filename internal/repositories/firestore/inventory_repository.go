package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/makhaana-store/api/internal/domain"
	pfirestore "github.com/makhaana-store/api/internal/platform/firestore"
	"github.com/makhaana-store/api/internal/repositories"
)

const (
	inventoryLogsCollection = "inventoryLogs"

	defaultLogPageSize = 50
	maxLogPageSize     = 200
)

type inventoryLogDocument struct {
	VariantID     string    `firestore:"variantId"`
	Delta         int64     `firestore:"delta"`
	Reason        string    `firestore:"reason"`
	ReferenceType string    `firestore:"referenceType,omitempty"`
	ReferenceID   string    `firestore:"referenceId,omitempty"`
	Actor         string    `firestore:"actor,omitempty"`
	CreatedAt     time.Time `firestore:"createdAt"`
}

func (d inventoryLogDocument) toDomain(id string) domain.InventoryLogEntry {
	return domain.InventoryLogEntry{
		ID:            id,
		VariantID:     d.VariantID,
		Delta:         d.Delta,
		Reason:        domain.InventoryChangeReason(d.Reason),
		ReferenceType: d.ReferenceType,
		ReferenceID:   d.ReferenceID,
		Actor:         d.Actor,
		CreatedAt:     d.CreatedAt,
	}
}

// InventoryRepository maintains the stock ledger and live counters on variants.
type InventoryRepository struct {
	provider *pfirestore.Provider
	variants *pfirestore.Collection[variantDocument]
	logs     *pfirestore.Collection[inventoryLogDocument]
}

// NewInventoryRepository constructs a Firestore backed inventory repository.
func NewInventoryRepository(provider *pfirestore.Provider) (*InventoryRepository, error) {
	if provider == nil {
		return nil, errors.New("inventory repository requires firestore provider")
	}
	variants := pfirestore.NewCollection[variantDocument](provider, variantsCollection)
	logs := pfirestore.NewCollection[inventoryLogDocument](provider, inventoryLogsCollection)
	return &InventoryRepository{provider: provider, variants: variants, logs: logs}, nil
}

// AdjustStock sets the variant's stock to the requested quantity and appends
// a ledger entry carrying the delta, in one transaction.
func (r *InventoryRepository) AdjustStock(ctx context.Context, adj repositories.StockAdjustment) (domain.Variant, domain.InventoryLogEntry, error) {
	if r == nil || r.provider == nil {
		return domain.Variant{}, domain.InventoryLogEntry{}, errors.New("inventory repository not initialised")
	}
	variantID := strings.TrimSpace(adj.VariantID)
	if variantID == "" {
		return domain.Variant{}, domain.InventoryLogEntry{}, repositories.NewInventoryError(
			repositories.InventoryErrorVariantNotFound, "inventory adjust: variant id is required", nil)
	}
	if adj.NewQuantity < 0 {
		return domain.Variant{}, domain.InventoryLogEntry{}, repositories.NewInventoryError(
			repositories.InventoryErrorNegativeQuantity,
			fmt.Sprintf("inventory adjust: quantity %d is negative", adj.NewQuantity), nil)
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Variant{}, domain.InventoryLogEntry{}, err
	}

	var (
		updated variantDocument
		entry   inventoryLogDocument
		entryID string
	)
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		now := time.Now().UTC()
		variantRef := client.Collection(variantsCollection).Doc(variantID)
		snap, err := tx.Get(variantRef)
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return repositories.NewInventoryError(repositories.InventoryErrorVariantNotFound,
					fmt.Sprintf("variant %s not found", variantID), err)
			}
			return err
		}
		var doc variantDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode variant %s: %w", variantID, err)
		}

		delta := adj.NewQuantity - doc.StockQuantity
		doc.StockQuantity = adj.NewQuantity
		doc.UpdatedAt = now
		if err := tx.Set(variantRef, doc); err != nil {
			return err
		}

		reason := adj.Reason
		if reason == "" {
			reason = domain.InventoryReasonAdminAdjustment
		}
		logRef := client.Collection(inventoryLogsCollection).NewDoc()
		entry = inventoryLogDocument{
			VariantID: variantID,
			Delta:     delta,
			Reason:    string(reason),
			Actor:     strings.TrimSpace(adj.Actor),
			CreatedAt: now,
		}
		if err := tx.Create(logRef, entry); err != nil {
			return err
		}

		updated = doc
		entryID = logRef.ID
		return nil
	})
	if err != nil {
		return domain.Variant{}, domain.InventoryLogEntry{}, err
	}
	return updated.toDomain(variantID), entry.toDomain(entryID), nil
}

// ListEntries returns ledger entries for a variant, newest first.
func (r *InventoryRepository) ListEntries(ctx context.Context, variantID string, pager domain.Pagination) (domain.CursorPage[domain.InventoryLogEntry], error) {
	if r == nil || r.logs == nil {
		return domain.CursorPage[domain.InventoryLogEntry]{}, errors.New("inventory repository not initialised")
	}
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return domain.CursorPage[domain.InventoryLogEntry]{}, errors.New("inventory entries: variant id is required")
	}

	pageSize := pager.PageSize
	if pageSize <= 0 {
		pageSize = defaultLogPageSize
	}
	if pageSize > maxLogPageSize {
		pageSize = maxLogPageSize
	}

	startAfter, err := decodeTimestampCursor(pager.PageToken)
	if err != nil {
		return domain.CursorPage[domain.InventoryLogEntry]{}, err
	}

	docs, err := r.logs.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("variantId", "==", variantID).
			OrderBy("createdAt", firestore.Desc).
			OrderBy(firestore.DocumentID, firestore.Asc)
		if startAfter != nil {
			q = q.StartAfter(startAfter.at, startAfter.id)
		}
		return q.Limit(pageSize + 1)
	})
	if err != nil {
		return domain.CursorPage[domain.InventoryLogEntry]{}, err
	}

	page := domain.CursorPage[domain.InventoryLogEntry]{}
	for i, doc := range docs {
		if i == pageSize {
			last := docs[pageSize-1]
			if token, err := encodeTimestampCursor(last.Data.CreatedAt, last.ID); err == nil {
				page.NextPageToken = token
			}
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

// CollectDrift sums ledger deltas per variant and compares initial stock plus
// deltas against the live counter. Entries that disagree are reported.
func (r *InventoryRepository) CollectDrift(ctx context.Context) ([]domain.InventoryDrift, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("inventory repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	deltas := make(map[string]int64)
	iter := client.Collection(inventoryLogsCollection).Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError("inventorylogs.scan", err)
		}
		var doc inventoryLogDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode ledger entry %s: %w", snap.Ref.ID, err)
		}
		deltas[doc.VariantID] += doc.Delta
	}

	variants, err := r.variants.Query(ctx, nil)
	if err != nil {
		return nil, err
	}

	var drifts []domain.InventoryDrift
	for _, doc := range variants {
		expected := doc.Data.InitialStock + deltas[doc.ID]
		if expected == doc.Data.StockQuantity {
			continue
		}
		drifts = append(drifts, domain.InventoryDrift{
			VariantID:     doc.ID,
			SKU:           doc.Data.SKU,
			InitialStock:  doc.Data.InitialStock,
			LedgerDelta:   deltas[doc.ID],
			ExpectedStock: expected,
			ActualStock:   doc.Data.StockQuantity,
		})
	}
	return drifts, nil
}
