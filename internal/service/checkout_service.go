package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"digistore/internal/models"
	"digistore/internal/payment"
	"digistore/internal/security"
	"digistore/internal/store"
)

const (
	maxCheckoutItems    = 20
	maxCheckoutQuantity = 10
)

var (
	minCheckoutTotal = decimal.RequireFromString("0.50")
	maxCheckoutTotal = decimal.NewFromInt(10000)
	priceTolerance   = decimal.RequireFromString("0.01")
)

// CheckoutProduct is the product snapshot a cart line carries. Only the id is
// trusted; the price is compared against the catalog.
type CheckoutProduct struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

// CheckoutItem is a cart line as submitted by the client, in the same
// {product, quantity} shape the cart persists.
type CheckoutItem struct {
	Product  CheckoutProduct `json:"product"`
	Quantity int             `json:"quantity"`
}

type CheckoutSession struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

type VerifiedSession struct {
	ID            string             `json:"id"`
	AmountTotal   decimal.Decimal    `json:"amount_total"`
	CustomerEmail string             `json:"customer_email"`
	Items         []models.OrderLine `json:"items"`
	PaymentStatus string             `json:"payment_status"`
	Created       time.Time          `json:"created"`
}

type CheckoutService struct {
	products ProductStore
	gateway  payment.Gateway
	limiter  RateLimiter
	baseURL  string
	logger   *logrus.Logger
}

func NewCheckoutService(logger *logrus.Logger, products ProductStore, gateway payment.Gateway, limiter RateLimiter, baseURL string) *CheckoutService {
	return &CheckoutService{
		products: products,
		gateway:  gateway,
		limiter:  limiter,
		baseURL:  strings.TrimRight(baseURL, "/"),
		logger:   logger,
	}
}

// CreateSession validates the cart against the catalog and opens a hosted
// checkout session for the trusted total.
func (s *CheckoutService) CreateSession(ctx context.Context, clientIP string, items []CheckoutItem) (*CheckoutSession, error) {
	if err := s.allow(ctx, clientIP); err != nil {
		return nil, err
	}

	if len(items) == 0 {
		return nil, validationf("cart is empty")
	}
	if len(items) > maxCheckoutItems {
		return nil, validationf("too many items in cart: %d (max %d)", len(items), maxCheckoutItems)
	}

	lines := make([]models.OrderLine, 0, len(items))
	lineItems := make([]payment.LineItem, 0, len(items))
	total := decimal.Zero
	for i, item := range items {
		product, err := s.validateItem(ctx, i, item)
		if err != nil {
			return nil, err
		}
		qty := decimal.NewFromInt(int64(item.Quantity))
		total = total.Add(product.Price.Mul(qty))

		lines = append(lines, models.OrderLine{
			ID:       product.ID,
			Name:     product.Name,
			Quantity: item.Quantity,
			Price:    product.Price,
		})
		lineItems = append(lineItems, payment.LineItem{
			Name:        product.Name,
			Description: product.Description,
			Image:       s.absoluteURL(product.Image),
			UnitAmount:  product.Price,
			Quantity:    int64(item.Quantity),
		})
	}

	if total.LessThan(minCheckoutTotal) || total.GreaterThan(maxCheckoutTotal) {
		return nil, validationf("order total %s outside allowed range", total.StringFixed(2))
	}

	payload, err := models.NewOrderMetadata(lines).Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to encode order metadata: %w", err)
	}

	session, err := s.gateway.CreateSession(ctx, payment.SessionRequest{
		LineItems:  lineItems,
		SuccessURL: s.baseURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  s.baseURL + "/cart",
		Metadata:   payment.EncodeOrderItems(payload),
	})
	if err != nil {
		s.logger.WithError(err).Error("Failed to create checkout session")
		return nil, fmt.Errorf("%w: checkout session could not be created", ErrCollaborator)
	}

	s.logger.WithFields(logrus.Fields{
		"session_id": session.ID,
		"items":      len(lines),
		"total":      total.StringFixed(2),
	}).Info("Checkout session created")
	return &CheckoutSession{SessionID: session.ID, URL: session.URL}, nil
}

func (s *CheckoutService) allow(ctx context.Context, clientIP string) error {
	ok, retryAfter, err := s.limiter.Allow(ctx, "checkout:"+security.HashKey(clientIP))
	if err != nil {
		// Limiter outages fail open.
		s.logger.WithError(err).Warn("Checkout rate limiter unavailable")
		return nil
	}
	if !ok {
		s.logger.WithField("retry_after", retryAfter.String()).Warn("Checkout rate limit exceeded")
		return &RateLimitError{RetryAfter: retryAfter}
	}
	return nil
}

func (s *CheckoutService) validateItem(ctx context.Context, i int, item CheckoutItem) (*models.Product, error) {
	id := strings.TrimSpace(item.Product.ID)
	if id == "" || strings.TrimSpace(item.Product.Name) == "" {
		return nil, validationf("item %d is missing an id or name", i)
	}
	if item.Quantity < 1 || item.Quantity > maxCheckoutQuantity {
		return nil, validationf("item %d quantity must be between 1 and %d", i, maxCheckoutQuantity)
	}
	if item.Product.Price.IsNegative() {
		return nil, validationf("item %d has a negative price", i)
	}
	if !security.IsValidProductID(id) {
		return nil, validationf("item %d has an invalid product id", i)
	}

	product, err := s.products.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: product %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to look up product %s: %w", id, err)
	}

	if item.Product.Price.Sub(product.Price).Abs().GreaterThan(priceTolerance) {
		s.logger.WithFields(logrus.Fields{
			"product_id":      id,
			"submitted_price": item.Product.Price.String(),
			"catalog_price":   product.Price.String(),
		}).Warn("Checkout price mismatch")
		return nil, integrityf("price mismatch for product %s", id)
	}
	return product, nil
}

func (s *CheckoutService) absoluteURL(path string) string {
	if path == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return s.baseURL + "/" + strings.TrimLeft(path, "/")
}

// VerifySession reports a completed checkout back to the success page.
func (s *CheckoutService) VerifySession(ctx context.Context, sessionID string) (*VerifiedSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, validationf("session_id is required")
	}

	session, err := s.gateway.RetrieveSession(ctx, sessionID)
	if err != nil {
		s.logger.WithError(err).WithField("session_id", sessionID).Error("Failed to retrieve checkout session")
		return nil, fmt.Errorf("%w: checkout session could not be retrieved", ErrCollaborator)
	}
	if session.PaymentStatus != payment.PaymentStatusPaid {
		return nil, validationf("payment not completed")
	}

	verified := &VerifiedSession{
		ID:            session.ID,
		AmountTotal:   session.AmountTotal,
		CustomerEmail: session.CustomerEmail,
		Items:         []models.OrderLine{},
		PaymentStatus: session.PaymentStatus,
		Created:       session.Created,
	}
	if raw, err := payment.DecodeOrderItems(session.Metadata); err == nil {
		if md, err := models.ParseOrderMetadata(raw); err == nil {
			verified.Items = md.Items
		} else {
			s.logger.WithError(err).WithField("session_id", sessionID).Warn("Unreadable order metadata on session")
		}
	}
	return verified, nil
}
