package store

import (
	"context"
	"strings"

	"digistore/internal/models"
)

type SubscriberRepository struct {
	subscribers *Collection[models.Subscriber]
}

func NewSubscriberRepository(rs RecordStore) *SubscriberRepository {
	return &SubscriberRepository{subscribers: NewCollection[models.Subscriber](rs, CollectionSubscribers)}
}

func (r *SubscriberRepository) All(ctx context.Context) ([]models.Subscriber, error) {
	return r.subscribers.All(ctx)
}

// Add stores s with a lower-cased email and returns the new subscriber count.
// An existing email, compared case-insensitively, yields ErrDuplicateRecord.
func (r *SubscriberRepository) Add(ctx context.Context, s models.Subscriber) (int, error) {
	s.Email = strings.ToLower(s.Email)
	total := 0
	err := r.subscribers.Mutate(ctx, func(subscribers []models.Subscriber) ([]models.Subscriber, error) {
		for _, existing := range subscribers {
			if strings.EqualFold(existing.Email, s.Email) {
				return nil, ErrDuplicateRecord
			}
		}
		subscribers = append(subscribers, s)
		total = len(subscribers)
		return subscribers, nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *SubscriberRepository) Remove(ctx context.Context, email string) error {
	return r.subscribers.Mutate(ctx, func(subscribers []models.Subscriber) ([]models.Subscriber, error) {
		kept := make([]models.Subscriber, 0, len(subscribers))
		for _, s := range subscribers {
			if !strings.EqualFold(s.Email, email) {
				kept = append(kept, s)
			}
		}
		if len(kept) == len(subscribers) {
			return nil, ErrRecordNotFound
		}
		return kept, nil
	})
}
