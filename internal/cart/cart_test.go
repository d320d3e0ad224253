package cart

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digistore/internal/models"
)

func product(id string, price float64) models.Product {
	return models.Product{ID: id, Name: "Product " + id, Price: decimal.NewFromFloat(price)}
}

func setup(t *testing.T) (*Reducer, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	return NewReducer(logger), hook
}

func assertTotals(t *testing.T, c Cart) {
	t.Helper()
	total := decimal.Zero
	count := 0
	for _, item := range c.Items {
		total = total.Add(item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		count += item.Quantity
	}
	assert.True(t, total.Equal(c.Total), "total %s != %s", c.Total, total)
	assert.Equal(t, count, c.ItemCount)
}

func TestAddToCart(t *testing.T) {
	r, hook := setup(t)

	t.Run("Appends new item with default quantity", func(t *testing.T) {
		c := r.Reduce(Empty(), Add(product("1", 49)))
		require.Len(t, c.Items, 1)
		assert.Equal(t, 1, c.Items[0].Quantity)
		assert.True(t, c.Total.Equal(decimal.NewFromInt(49)))
		assert.Equal(t, 1, c.ItemCount)
	})

	t.Run("Merges quantities for an existing item", func(t *testing.T) {
		c := r.Reduce(Empty(), Add(product("1", 49), 2))
		c = r.Reduce(c, Add(product("1", 49), 3))
		require.Len(t, c.Items, 1)
		assert.Equal(t, 5, c.Items[0].Quantity)
		assert.True(t, c.Total.Equal(decimal.NewFromInt(245)))
	})

	t.Run("Ignores invalid quantity", func(t *testing.T) {
		c := r.Reduce(Empty(), Add(product("1", 49), 2))
		hook.Reset()

		assert.Equal(t, c, r.Reduce(c, Add(product("1", 49), -1)))
		assert.Equal(t, c, r.Reduce(c, Add(product("1", 49), 0)))
		assert.Equal(t, c, r.Reduce(c, Add(product("1", 49), 1000)))
		assert.Len(t, hook.Entries, 3)
		assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	})

	t.Run("Ignores malformed product ID", func(t *testing.T) {
		c := r.Reduce(Empty(), Add(product("1", 49)))
		assert.Equal(t, c, r.Reduce(c, Add(product("../1", 49))))
		assert.Equal(t, c, r.Reduce(c, Add(product("", 49))))
	})

	t.Run("Merged quantity above maximum is flagged", func(t *testing.T) {
		hook.Reset()
		c := r.Reduce(Empty(), Add(product("1", 1), 999))
		c = r.Reduce(c, Add(product("1", 1), 1))
		assert.Equal(t, 1000, c.Items[0].Quantity)
		require.NotNil(t, hook.LastEntry())
		assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	})
}

func TestUpdateQuantity(t *testing.T) {
	r, _ := setup(t)
	base := r.Reduce(Empty(), Add(product("1", 10), 2))
	base = r.Reduce(base, Add(product("2", 5.5), 1))

	t.Run("Sets quantity", func(t *testing.T) {
		c := r.Reduce(base, UpdateQuantity("2", 4))
		assert.Equal(t, 4, c.Items[1].Quantity)
		assert.True(t, c.Total.Equal(decimal.NewFromInt(42)))
		assertTotals(t, c)
	})

	t.Run("Zero is equivalent to remove", func(t *testing.T) {
		assert.Equal(t, r.Reduce(base, Remove("1")), r.Reduce(base, UpdateQuantity("1", 0)))
		assert.Equal(t, r.Reduce(base, Remove("1")), r.Reduce(base, UpdateQuantity("1", -3)))
	})

	t.Run("Rejects out of range quantity", func(t *testing.T) {
		assert.Equal(t, base, r.Reduce(base, UpdateQuantity("1", 1000)))
	})

	t.Run("Rejects malformed product ID", func(t *testing.T) {
		assert.Equal(t, base, r.Reduce(base, UpdateQuantity("1;drop", 2)))
	})

	t.Run("Does not mutate previous state", func(t *testing.T) {
		_ = r.Reduce(base, UpdateQuantity("1", 7))
		assert.Equal(t, 2, base.Items[0].Quantity)
	})
}

func TestRemoveAndClear(t *testing.T) {
	r, _ := setup(t)
	c := r.Reduce(Empty(), Add(product("1", 10), 2))
	c = r.Reduce(c, Add(product("2", 20)))

	removed := r.Reduce(c, Remove("1"))
	require.Len(t, removed.Items, 1)
	assert.Equal(t, "2", removed.Items[0].Product.ID)
	assertTotals(t, removed)

	cleared := r.Reduce(c, Clear())
	assert.Empty(t, cleared.Items)
	assert.True(t, cleared.Total.IsZero())
	assert.Zero(t, cleared.ItemCount)
}

func TestTotalsHoldForRandomActionSequences(t *testing.T) {
	r, _ := setup(t)
	rng := rand.New(rand.NewSource(42))
	catalog := []models.Product{product("1", 49), product("2", 79.99), product("3", 0.5), product("4", 19.95)}

	c := Empty()
	for i := 0; i < 2000; i++ {
		p := catalog[rng.Intn(len(catalog))]
		switch rng.Intn(5) {
		case 0, 1:
			c = r.Reduce(c, Add(p, rng.Intn(12)-1))
		case 2:
			c = r.Reduce(c, UpdateQuantity(p.ID, rng.Intn(15)-2))
		case 3:
			c = r.Reduce(c, Remove(p.ID))
		case 4:
			if rng.Intn(10) == 0 {
				c = r.Reduce(c, Clear())
			}
		}
		assertTotals(t, c)
	}
}

func TestRehydrate(t *testing.T) {
	stored := Cart{
		Items: []Item{
			{Product: product("1", 10), Quantity: 2},
			{Product: product("bad id", 10), Quantity: 1},
			{Product: product("3", 10), Quantity: 0},
			{Product: product("4", 2.5), Quantity: 4},
		},
		Total:     decimal.NewFromInt(1_000_000),
		ItemCount: 99,
	}

	c := Rehydrate(stored)
	require.Len(t, c.Items, 2)
	assert.True(t, c.Total.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, 6, c.ItemCount)
}

func ExampleReducer_Reduce() {
	r := NewReducer(logrus.New())
	c := r.Reduce(Empty(), Add(product("1", 49), 2))
	c = r.Reduce(c, Add(product("2", 19)))
	fmt.Println(c.Total.StringFixed(2), c.ItemCount)
	// Output: 117.00 3
}
