package store

import (
	"context"
	"strings"

	"digistore/internal/models"
)

type PurchaseRepository struct {
	purchases *Collection[models.Purchase]
}

func NewPurchaseRepository(rs RecordStore) *PurchaseRepository {
	return &PurchaseRepository{purchases: NewCollection[models.Purchase](rs, CollectionPurchases)}
}

func (r *PurchaseRepository) All(ctx context.Context) ([]models.Purchase, error) {
	return r.purchases.All(ctx)
}

// BySessionID returns nil, nil when no purchase carries the session id.
func (r *PurchaseRepository) BySessionID(ctx context.Context, sessionID string) (*models.Purchase, error) {
	purchases, err := r.purchases.All(ctx)
	if err != nil {
		return nil, err
	}
	for i := range purchases {
		if purchases[i].SessionID == sessionID {
			return &purchases[i], nil
		}
	}
	return nil, nil
}

func (r *PurchaseRepository) ByEmail(ctx context.Context, email string) ([]models.Purchase, error) {
	purchases, err := r.purchases.All(ctx)
	if err != nil {
		return nil, err
	}
	var matched []models.Purchase
	for _, p := range purchases {
		if strings.EqualFold(p.CustomerEmail, email) {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

// Create appends p unless a purchase with the same session id exists, in which
// case ErrDuplicateRecord is returned and nothing is written.
func (r *PurchaseRepository) Create(ctx context.Context, p models.Purchase) error {
	return r.purchases.Mutate(ctx, func(purchases []models.Purchase) ([]models.Purchase, error) {
		for _, existing := range purchases {
			if existing.SessionID == p.SessionID {
				return nil, ErrDuplicateRecord
			}
		}
		return append(purchases, p), nil
	})
}

func (r *PurchaseRepository) Update(ctx context.Context, id string, fn func(p *models.Purchase) error) (*models.Purchase, error) {
	var updated models.Purchase
	err := r.purchases.Mutate(ctx, func(purchases []models.Purchase) ([]models.Purchase, error) {
		for i := range purchases {
			if purchases[i].ID != id {
				continue
			}
			if err := fn(&purchases[i]); err != nil {
				return nil, err
			}
			updated = purchases[i]
			return purchases, nil
		}
		return nil, ErrRecordNotFound
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}
