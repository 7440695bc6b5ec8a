package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/makhaana-store/api/internal/domain"
	pfirestore "github.com/makhaana-store/api/internal/platform/firestore"
)

const deliveryRulesCollection = "deliveryRules"

type deliveryRuleDocument struct {
	MinOrderValue int64 `firestore:"minOrderValue"`
	MaxOrderValue int64 `firestore:"maxOrderValue"`
	Charge        int64 `firestore:"charge"`
	Position      int   `firestore:"position"`
}

// DeliveryRuleRepository stores the delivery charge rule table.
type DeliveryRuleRepository struct {
	provider *pfirestore.Provider
	rules    *pfirestore.Collection[deliveryRuleDocument]
}

// NewDeliveryRuleRepository constructs a Firestore backed delivery rule repository.
func NewDeliveryRuleRepository(provider *pfirestore.Provider) (*DeliveryRuleRepository, error) {
	if provider == nil {
		return nil, errors.New("delivery rule repository requires firestore provider")
	}
	rules := pfirestore.NewCollection[deliveryRuleDocument](provider, deliveryRulesCollection)
	return &DeliveryRuleRepository{provider: provider, rules: rules}, nil
}

// List returns the rule table ordered by range start.
func (r *DeliveryRuleRepository) List(ctx context.Context) ([]domain.DeliveryRule, error) {
	if r == nil || r.rules == nil {
		return nil, errors.New("delivery rule repository not initialised")
	}
	docs, err := r.rules.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("minOrderValue", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	out := make([]domain.DeliveryRule, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.DeliveryRule{
			ID:            doc.ID,
			MinOrderValue: domain.Money(doc.Data.MinOrderValue),
			MaxOrderValue: domain.Money(doc.Data.MaxOrderValue),
			Charge:        domain.Money(doc.Data.Charge),
		})
	}
	return out, nil
}

// Replace swaps the whole rule table in one transaction.
func (r *DeliveryRuleRepository) Replace(ctx context.Context, rules []domain.DeliveryRule) error {
	if r == nil || r.provider == nil {
		return errors.New("delivery rule repository not initialised")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}

	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing := tx.Documents(client.Collection(deliveryRulesCollection))
		refs, err := existing.GetAll()
		if err != nil {
			return pfirestore.WrapError("deliveryrules.scan", err)
		}
		for _, snap := range refs {
			if err := tx.Delete(snap.Ref); err != nil {
				return err
			}
		}
		for i, rule := range rules {
			id := strings.TrimSpace(rule.ID)
			var ref *firestore.DocumentRef
			if id == "" {
				ref = client.Collection(deliveryRulesCollection).NewDoc()
			} else {
				ref = client.Collection(deliveryRulesCollection).Doc(id)
			}
			if err := tx.Create(ref, deliveryRuleDocument{
				MinOrderValue: int64(rule.MinOrderValue),
				MaxOrderValue: int64(rule.MaxOrderValue),
				Charge:        int64(rule.Charge),
				Position:      i,
			}); err != nil {
				return fmt.Errorf("create delivery rule %d: %w", i, err)
			}
		}
		return nil
	})
}
