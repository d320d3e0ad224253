package service

import (
	"context"
	"time"

	"digistore/internal/models"
)

type RateLimiter interface {
	// Allow records one request for key. When the key is over its limit it
	// returns false and the time until a request would be accepted.
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// SessionSet tracks payment sessions that have already been reconciled.
type SessionSet interface {
	Seen(ctx context.Context, sessionID string) (bool, error)
	Mark(ctx context.Context, sessionID string) error
}

type ProductStore interface {
	List(ctx context.Context) ([]models.Product, error)
	Get(ctx context.Context, id string) (*models.Product, error)
	Create(ctx context.Context, p models.Product) (*models.Product, error)
	Update(ctx context.Context, id string, fn func(p *models.Product) error) (*models.Product, error)
	Delete(ctx context.Context, id string) (*models.Product, error)
	SeedDefaults(ctx context.Context) (bool, error)
}

type PurchaseStore interface {
	All(ctx context.Context) ([]models.Purchase, error)
	BySessionID(ctx context.Context, sessionID string) (*models.Purchase, error)
	ByEmail(ctx context.Context, email string) ([]models.Purchase, error)
	Create(ctx context.Context, p models.Purchase) error
	Update(ctx context.Context, id string, fn func(p *models.Purchase) error) (*models.Purchase, error)
}

type SubscriberStore interface {
	All(ctx context.Context) ([]models.Subscriber, error)
	Add(ctx context.Context, s models.Subscriber) (int, error)
	Remove(ctx context.Context, email string) error
}
