package cart

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapStorage struct {
	data map[string]string
}

func newMapStorage() *mapStorage { return &mapStorage{data: make(map[string]string)} }

func (m *mapStorage) Get(key string) (string, bool, error) {
	v, ok := m.data[key]
	return v, ok, nil
}
func (m *mapStorage) Set(key, value string) error {
	m.data[key] = value
	return nil
}
func (m *mapStorage) Remove(key string) error {
	delete(m.data, key)
	return nil
}

func TestEncodeDecode(t *testing.T) {
	r, _ := setup(t)
	c := r.Reduce(Empty(), Add(product("1", 49), 2))

	encoded, err := Encode(c)
	require.NoError(t, err)
	assert.NotContains(t, encoded, "{")

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.True(t, decoded.Total.Equal(decimal.NewFromInt(98)))
	assert.Equal(t, 2, decoded.ItemCount)

	t.Run("Plain JSON", func(t *testing.T) {
		raw, _ := json.Marshal(c)
		decoded, err := Decode(string(raw))
		require.NoError(t, err)
		assert.Len(t, decoded.Items, 1)
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := Decode("not a cart")
		assert.Error(t, err)
	})
}

func TestStorePersistsAndRestores(t *testing.T) {
	logger, _ := test.NewNullLogger()
	storage := newMapStorage()

	s := NewStore(logger, storage)
	s.Dispatch(Add(product("1", 10), 3))
	s.Dispatch(Add(product("2", 4)))
	require.Contains(t, storage.data, storageKey)

	restored := NewStore(logger, storage)
	assert.Equal(t, 4, restored.State().ItemCount)
	assert.True(t, restored.State().Total.Equal(decimal.NewFromInt(34)))
}

func TestStoreRecomputesTamperedTotals(t *testing.T) {
	logger, _ := test.NewNullLogger()
	storage := newMapStorage()
	storage.data[storageKey] = `{"items":[{"product":{"id":"1","name":"x","price":10},"quantity":2},{"product":{"id":"$$","name":"y","price":1},"quantity":1}],"total":0.01,"itemCount":1}`

	s := NewStore(logger, storage)
	assert.Len(t, s.State().Items, 1)
	assert.True(t, s.State().Total.Equal(decimal.NewFromInt(20)))
	assert.Equal(t, 2, s.State().ItemCount)
}

func TestStoreClearsCorruptedData(t *testing.T) {
	logger, hook := test.NewNullLogger()
	storage := newMapStorage()
	storage.data[storageKey] = "%%%"

	s := NewStore(logger, storage)
	assert.Empty(t, s.State().Items)
	assert.NotContains(t, storage.data, storageKey)
	assert.NotEmpty(t, hook.Entries)
}
