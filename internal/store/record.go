package store

import (
	"context"
	"encoding/json"
	"errors"

	pkgerrors "github.com/pkg/errors"
)

const (
	CollectionProducts    = "products"
	CollectionPurchases   = "purchases"
	CollectionSubscribers = "subscribers"
)

var (
	ErrRecordNotFound  = errors.New("store: record not found")
	ErrDuplicateRecord = errors.New("store: duplicate record")
)

var emptyCollection = []byte("[]")

// RecordStore keeps each collection as a single JSON array. Update is the only
// safe way to mutate a collection: implementations serialise concurrent
// updaters of the same collection.
type RecordStore interface {
	ReadAll(ctx context.Context, collection string) ([]byte, error)
	WriteAll(ctx context.Context, collection string, data []byte) error
	Update(ctx context.Context, collection string, fn func(data []byte) ([]byte, error)) error
	Close() error
}

// Collection is a typed view over one RecordStore collection.
type Collection[T any] struct {
	store RecordStore
	name  string
}

func NewCollection[T any](store RecordStore, name string) *Collection[T] {
	return &Collection[T]{store: store, name: name}
}

func (c *Collection[T]) All(ctx context.Context) ([]T, error) {
	data, err := c.store.ReadAll(ctx, c.name)
	if err != nil {
		return nil, err
	}
	return c.decode(data)
}

func (c *Collection[T]) Replace(ctx context.Context, items []T) error {
	data, err := c.encode(items)
	if err != nil {
		return err
	}
	return c.store.WriteAll(ctx, c.name, data)
}

// Mutate runs fn over the current records and writes back what it returns. If
// fn fails nothing is written and its error is returned unchanged.
func (c *Collection[T]) Mutate(ctx context.Context, fn func(items []T) ([]T, error)) error {
	return c.store.Update(ctx, c.name, func(data []byte) ([]byte, error) {
		items, err := c.decode(data)
		if err != nil {
			return nil, err
		}
		items, err = fn(items)
		if err != nil {
			return nil, err
		}
		return c.encode(items)
	})
}

func (c *Collection[T]) decode(data []byte) ([]T, error) {
	items := []T{}
	if len(data) == 0 {
		return items, nil
	}
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, pkgerrors.Wrapf(err, "decode collection %s", c.name)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func (c *Collection[T]) encode(items []T) ([]byte, error) {
	if items == nil {
		items = []T{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "encode collection %s", c.name)
	}
	return data, nil
}
