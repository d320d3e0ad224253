package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"digistore/internal/models"
	"digistore/internal/security"
	"digistore/internal/store"
)

type ProductFilter struct {
	Category models.Category
	Featured bool
	Query    string
}

// TagList accepts either a JSON array or a comma separated string.
type TagList []string

func (t *TagList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*t = normalizeTags(list)
		return nil
	}
	var joined string
	if err := json.Unmarshal(data, &joined); err != nil {
		return fmt.Errorf("tags must be an array or a comma separated string")
	}
	*t = normalizeTags(strings.Split(joined, ","))
	return nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}

// ProductInput is a create or partial update request. Nil fields are left
// untouched on update.
type ProductInput struct {
	Name        *string            `json:"name"`
	Description *string            `json:"description"`
	Price       *decimal.Decimal   `json:"price"`
	Category    *models.Category   `json:"category"`
	Image       *string            `json:"image"`
	Images      []string           `json:"images"`
	Tags        *TagList           `json:"tags"`
	DownloadURL *string            `json:"downloadUrl"`
	Preview     *string            `json:"preview"`
	Featured    *bool              `json:"featured"`
	Repository  *models.Repository `json:"repository"`
}

func (in ProductInput) validate(create bool) error {
	if create {
		switch {
		case in.Name == nil, in.Description == nil, in.Price == nil, in.Category == nil:
			return validationf("name, description, price and category are required")
		}
	}
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return validationf("name must not be empty")
	}
	if in.Price != nil && in.Price.IsNegative() {
		return validationf("price must not be negative")
	}
	if in.Category != nil && !in.Category.Valid() {
		return validationf("unknown category %q", *in.Category)
	}
	if r := in.Repository; r != nil && (strings.TrimSpace(r.Owner) == "" || strings.TrimSpace(r.Name) == "") {
		return validationf("repository needs an owner and a name")
	}
	return nil
}

func (in ProductInput) apply(p *models.Product) {
	if in.Name != nil {
		p.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Category != nil {
		p.Category = *in.Category
	}
	if in.Image != nil {
		p.Image = *in.Image
	}
	if in.Images != nil {
		p.Images = in.Images
	}
	if in.Tags != nil {
		p.Tags = *in.Tags
	}
	if in.DownloadURL != nil {
		p.DownloadURL = *in.DownloadURL
	}
	if in.Preview != nil {
		p.Preview = *in.Preview
	}
	if in.Featured != nil {
		p.Featured = *in.Featured
	}
	if in.Repository != nil {
		p.Repository = in.Repository
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
}

type CatalogService struct {
	products ProductStore
	logger   *logrus.Logger
}

func NewCatalogService(logger *logrus.Logger, products ProductStore) *CatalogService {
	return &CatalogService{products: products, logger: logger}
}

func (s *CatalogService) List(ctx context.Context, filter ProductFilter) ([]models.Product, error) {
	products, err := s.products.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	query := strings.ToLower(security.SanitizeSearchQuery(filter.Query))
	out := make([]models.Product, 0, len(products))
	for _, p := range products {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if filter.Featured && !p.Featured {
			continue
		}
		if query != "" && !matchesQuery(p, query) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func matchesQuery(p models.Product, query string) bool {
	if strings.Contains(strings.ToLower(p.Name), query) ||
		strings.Contains(strings.ToLower(p.Description), query) ||
		strings.Contains(string(p.Category), query) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	return false
}

func (s *CatalogService) Get(ctx context.Context, id string) (*models.Product, error) {
	if !security.IsValidProductID(id) {
		return nil, validationf("invalid product id")
	}
	p, err := s.products.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get product %s: %w", id, err)
	}
	return p, nil
}

func (s *CatalogService) Create(ctx context.Context, in ProductInput) (*models.Product, error) {
	if err := in.validate(true); err != nil {
		return nil, err
	}
	var p models.Product
	in.apply(&p)

	created, err := s.products.Create(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	s.logger.WithFields(logrus.Fields{"product_id": created.ID, "name": created.Name}).Info("Product created")
	return created, nil
}

func (s *CatalogService) Update(ctx context.Context, id string, in ProductInput) (*models.Product, error) {
	if !security.IsValidProductID(id) {
		return nil, validationf("invalid product id")
	}
	if err := in.validate(false); err != nil {
		return nil, err
	}

	updated, err := s.products.Update(ctx, id, func(p *models.Product) error {
		in.apply(p)
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to update product %s: %w", id, err)
	}
	s.logger.WithField("product_id", id).Info("Product updated")
	return updated, nil
}

func (s *CatalogService) Delete(ctx context.Context, id string) (*models.Product, error) {
	if !security.IsValidProductID(id) {
		return nil, validationf("invalid product id")
	}
	deleted, err := s.products.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to delete product %s: %w", id, err)
	}
	s.logger.WithField("product_id", id).Info("Product deleted")
	return deleted, nil
}

// Seed writes the default catalog if no products exist yet.
func (s *CatalogService) Seed(ctx context.Context) (bool, error) {
	seeded, err := s.products.SeedDefaults(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to seed products: %w", err)
	}
	if seeded {
		s.logger.Info("Seeded default product catalog")
	}
	return seeded, nil
}
