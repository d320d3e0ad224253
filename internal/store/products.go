package store

import (
	"context"
	"strconv"

	"github.com/shopspring/decimal"

	"digistore/internal/models"
)

type ProductRepository struct {
	products *Collection[models.Product]
}

func NewProductRepository(rs RecordStore) *ProductRepository {
	return &ProductRepository{products: NewCollection[models.Product](rs, CollectionProducts)}
}

func (r *ProductRepository) List(ctx context.Context) ([]models.Product, error) {
	return r.products.All(ctx)
}

// Get returns ErrRecordNotFound when no product has the given id.
func (r *ProductRepository) Get(ctx context.Context, id string) (*models.Product, error) {
	products, err := r.products.All(ctx)
	if err != nil {
		return nil, err
	}
	for i := range products {
		if products[i].ID == id {
			return &products[i], nil
		}
	}
	return nil, ErrRecordNotFound
}

// Create assigns the next numeric id (highest numeric id + 1) and appends.
func (r *ProductRepository) Create(ctx context.Context, p models.Product) (*models.Product, error) {
	err := r.products.Mutate(ctx, func(products []models.Product) ([]models.Product, error) {
		p.ID = nextProductID(products)
		return append(products, p), nil
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Update applies fn to the stored product. The id cannot be changed.
func (r *ProductRepository) Update(ctx context.Context, id string, fn func(p *models.Product) error) (*models.Product, error) {
	var updated models.Product
	err := r.products.Mutate(ctx, func(products []models.Product) ([]models.Product, error) {
		for i := range products {
			if products[i].ID != id {
				continue
			}
			if err := fn(&products[i]); err != nil {
				return nil, err
			}
			products[i].ID = id
			updated = products[i]
			return products, nil
		}
		return nil, ErrRecordNotFound
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *ProductRepository) Delete(ctx context.Context, id string) (*models.Product, error) {
	var deleted models.Product
	err := r.products.Mutate(ctx, func(products []models.Product) ([]models.Product, error) {
		kept := make([]models.Product, 0, len(products))
		found := false
		for _, p := range products {
			if p.ID == id {
				deleted = p
				found = true
				continue
			}
			kept = append(kept, p)
		}
		if !found {
			return nil, ErrRecordNotFound
		}
		return kept, nil
	})
	if err != nil {
		return nil, err
	}
	return &deleted, nil
}

// SeedDefaults writes the starter catalog when the collection is empty and
// reports whether it did.
func (r *ProductRepository) SeedDefaults(ctx context.Context) (bool, error) {
	seeded := false
	err := r.products.Mutate(ctx, func(products []models.Product) ([]models.Product, error) {
		if len(products) > 0 {
			return products, nil
		}
		seeded = true
		return DefaultProducts(), nil
	})
	return seeded, err
}

func nextProductID(products []models.Product) string {
	maxID := 0
	for _, p := range products {
		if n, err := strconv.Atoi(p.ID); err == nil && n > maxID {
			maxID = n
		}
	}
	return strconv.Itoa(maxID + 1)
}

func DefaultProducts() []models.Product {
	return []models.Product{
		{
			ID:          "1",
			Name:        "Modern Dashboard UI Kit",
			Description: "A comprehensive dashboard UI kit with 50+ components and dark mode support. Perfect for creating modern admin panels and analytics dashboards.",
			Price:       decimal.NewFromInt(49),
			Category:    models.CategoryUIKits,
			Image:       "/images/dashboard-ui.jpg",
			Tags:        []string{"dashboard", "ui-kit", "components", "dark-mode", "admin"},
			Featured:    true,
			DownloadURL: "/downloads/dashboard-ui.zip",
		},
		{
			ID:          "2",
			Name:        "E-commerce Template",
			Description: "Complete e-commerce website template built with React and Tailwind CSS. Includes product pages, cart, and checkout flow.",
			Price:       decimal.NewFromInt(79),
			Category:    models.CategoryTemplates,
			Image:       "/images/ecommerce-template.jpg",
			Tags:        []string{"ecommerce", "template", "react", "tailwind", "shop"},
			DownloadURL: "/downloads/ecommerce-template.zip",
		},
		{
			ID:          "3",
			Name:        "Icon Pack - Business",
			Description: "Set of 200+ business and office icons in SVG format. Clean, modern design perfect for web and mobile apps.",
			Price:       decimal.NewFromInt(19),
			Category:    models.CategoryIcons,
			Image:       "/images/business-icons.jpg",
			Tags:        []string{"icons", "business", "svg", "office", "web"},
			Featured:    true,
			DownloadURL: "/downloads/business-icons.zip",
		},
		{
			ID:          "4",
			Name:        "Landing Page Template",
			Description: "High-converting landing page template with modern design and responsive layout. Great for SaaS and startups.",
			Price:       decimal.NewFromInt(39),
			Category:    models.CategoryTemplates,
			Image:       "/images/landing-template.jpg",
			Tags:        []string{"landing", "template", "saas", "startup", "conversion"},
			DownloadURL: "/downloads/landing-template.zip",
		},
	}
}
