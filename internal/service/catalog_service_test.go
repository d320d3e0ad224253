package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digistore/internal/models"
)

func TestCatalogListFilters(t *testing.T) {
	logger, _ := newTestLogger()
	svc := NewCatalogService(logger, newTestStores(t).products)
	ctx := context.Background()

	all, err := svc.List(ctx, ProductFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	featured, err := svc.List(ctx, ProductFilter{Featured: true})
	require.NoError(t, err)
	assert.Len(t, featured, 2)

	templates, err := svc.List(ctx, ProductFilter{Category: models.CategoryTemplates})
	require.NoError(t, err)
	assert.Len(t, templates, 2)

	found, err := svc.List(ctx, ProductFilter{Query: "<Dashboard>"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "1", found[0].ID)
}

func TestCatalogCreateUpdateDelete(t *testing.T) {
	logger, hook := newTestLogger()
	svc := NewCatalogService(logger, newTestStores(t).products)
	ctx := context.Background()

	var in ProductInput
	require.NoError(t, json.Unmarshal([]byte(`{
		"name": " Neon Icons ",
		"description": "Glowing icons",
		"price": 15,
		"category": "icons",
		"tags": "neon, icons, ,glow"
	}`), &in))

	created, err := svc.Create(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "5", created.ID)
	assert.Equal(t, "Neon Icons", created.Name)
	assert.Equal(t, []string{"neon", "icons", "glow"}, created.Tags)
	assert.Equal(t, "Product created", hook.LastEntry().Message)

	var patch ProductInput
	require.NoError(t, json.Unmarshal([]byte(`{"price": "17.5", "featured": true, "tags": ["a"]}`), &patch))
	updated, err := svc.Update(ctx, "5", patch)
	require.NoError(t, err)
	assert.True(t, updated.Price.Equal(price("17.5")))
	assert.True(t, updated.Featured)
	assert.Equal(t, "Neon Icons", updated.Name)
	assert.Equal(t, []string{"a"}, updated.Tags)

	_, err = svc.Delete(ctx, "5")
	require.NoError(t, err)
	_, err = svc.Get(ctx, "5")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalogValidation(t *testing.T) {
	logger, _ := newTestLogger()
	svc := NewCatalogService(logger, newTestStores(t).products)
	ctx := context.Background()

	name := "X"
	_, err := svc.Create(ctx, ProductInput{Name: &name})
	assert.ErrorIs(t, err, ErrValidation)

	bad := models.Category("fonts")
	_, err = svc.Update(ctx, "1", ProductInput{Category: &bad})
	assert.ErrorIs(t, err, ErrValidation)

	negative := price("-1")
	_, err = svc.Update(ctx, "1", ProductInput{Price: &negative})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Get(ctx, "../etc")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.Update(ctx, "77", ProductInput{})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Delete(ctx, "77")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTagListRejectsOtherShapes(t *testing.T) {
	var tags TagList
	assert.Error(t, json.Unmarshal([]byte(`42`), &tags))
}
