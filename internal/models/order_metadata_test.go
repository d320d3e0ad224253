package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderMetadata(t *testing.T) {
	t.Run("Versioned payload", func(t *testing.T) {
		raw, err := NewOrderMetadata([]OrderLine{
			{ID: "1", Name: "Dashboard UI Kit", Quantity: 2, Price: decimal.NewFromInt(49)},
		}).Marshal()
		require.NoError(t, err)
		assert.Contains(t, raw, `"v":1`)

		m, err := ParseOrderMetadata(raw)
		require.NoError(t, err)
		assert.Equal(t, 1, m.Version)
		require.Len(t, m.Items, 1)
		assert.True(t, m.Items[0].Price.Equal(decimal.NewFromInt(49)))
		assert.Equal(t, 2, m.Items[0].Quantity)
	})

	t.Run("Legacy array", func(t *testing.T) {
		m, err := ParseOrderMetadata(`[{"id":"3","name":"Icons","quantity":1,"price":19}]`)
		require.NoError(t, err)
		assert.Equal(t, 0, m.Version)
		assert.Equal(t, "3", m.Items[0].ID)
	})

	t.Run("Rejects unknown fields", func(t *testing.T) {
		_, err := ParseOrderMetadata(`{"v":1,"items":[{"id":"1","name":"x","quantity":1,"price":1,"discount":5}]}`)
		assert.ErrorIs(t, err, ErrInvalidOrderMetadata)
	})

	t.Run("Rejects unknown version", func(t *testing.T) {
		_, err := ParseOrderMetadata(`{"v":2,"items":[{"id":"1","name":"x","quantity":1,"price":1}]}`)
		assert.ErrorIs(t, err, ErrInvalidOrderMetadata)
	})

	t.Run("Rejects malformed lines", func(t *testing.T) {
		for _, raw := range []string{
			``,
			`{"v":1,"items":[]}`,
			`{"v":1,"items":[{"id":"","name":"x","quantity":1,"price":1}]}`,
			`{"v":1,"items":[{"id":"1","name":"x","quantity":0,"price":1}]}`,
			`{"v":1,"items":[{"id":"1","name":"x","quantity":1,"price":-1}]}`,
			`{"v":1,"items":[{"id":"1","name":"x","quantity":"one","price":1}]}`,
		} {
			_, err := ParseOrderMetadata(raw)
			assert.ErrorIs(t, err, ErrInvalidOrderMetadata, raw)
		}
	})
}

func TestPurchaseItemIndex(t *testing.T) {
	p := Purchase{Items: []PurchaseItem{{ProductID: "1"}, {ProductID: "2"}}}
	assert.Equal(t, 1, p.ItemIndex("2"))
	assert.Equal(t, -1, p.ItemIndex("9"))
}
