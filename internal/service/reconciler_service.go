package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"digistore/internal/mailer"
	"digistore/internal/models"
	"digistore/internal/payment"
	"digistore/internal/security"
	"digistore/internal/store"
)

const (
	maxEventAge   = 10 * time.Minute
	maxSessionAge = time.Hour
)

type ReconcileStatus string

const (
	ReconcileProcessed ReconcileStatus = "processed"
	ReconcileDuplicate ReconcileStatus = "duplicate"
	ReconcileIgnored   ReconcileStatus = "ignored"
)

type ReconcileResult struct {
	Status     ReconcileStatus `json:"status"`
	PurchaseID string          `json:"purchaseId,omitempty"`
}

// ReconcilerService turns completed checkout webhooks into purchase records.
type ReconcilerService struct {
	products  ProductStore
	purchases PurchaseStore
	gateway   payment.Gateway
	processed SessionSet
	mail      mailer.Sender
	emailFrom string
	logger    *logrus.Logger
	now       func() time.Time
}

func NewReconcilerService(logger *logrus.Logger, products ProductStore, purchases PurchaseStore, gateway payment.Gateway, processed SessionSet, mail mailer.Sender, emailFrom string) *ReconcilerService {
	return &ReconcilerService{
		products:  products,
		purchases: purchases,
		gateway:   gateway,
		processed: processed,
		mail:      mail,
		emailFrom: emailFrom,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *ReconcilerService) HandleWebhook(ctx context.Context, payload []byte, signature string) (*ReconcileResult, error) {
	if signature == "" {
		return nil, integrityf("missing webhook signature")
	}
	event, err := s.gateway.ParseWebhook(payload, signature)
	if err != nil {
		s.logger.WithError(err).Warn("Webhook signature verification failed")
		return nil, integrityf("webhook signature verification failed")
	}

	log := s.logger.WithFields(logrus.Fields{"event_id": event.ID, "event_type": event.Type})

	if s.now().Sub(event.Created) > maxEventAge {
		log.WithField("created", event.Created).Warn("Rejected stale webhook event")
		return nil, validationf("event too old")
	}

	if event.Type != payment.EventCheckoutCompleted {
		log.Info("Ignoring unhandled webhook event type")
		return &ReconcileResult{Status: ReconcileIgnored}, nil
	}
	if event.Session == nil {
		return nil, validationf("event carries no checkout session")
	}

	return s.reconcile(ctx, log, event.Session)
}

func (s *ReconcilerService) reconcile(ctx context.Context, log *logrus.Entry, session *payment.Session) (*ReconcileResult, error) {
	log = log.WithField("session_id", session.ID)

	if session.ID != "" {
		seen, err := s.processed.Seen(ctx, session.ID)
		if err != nil {
			log.WithError(err).Warn("Processed-session lookup failed, falling back to record store")
		}
		if seen {
			log.Info("Session already processed")
			return &ReconcileResult{Status: ReconcileDuplicate}, nil
		}

		existing, err := s.purchases.BySessionID(ctx, session.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up purchase: %w", err)
		}
		if existing != nil {
			s.markProcessed(ctx, log, session.ID)
			log.Info("Purchase already recorded for session")
			return &ReconcileResult{Status: ReconcileDuplicate, PurchaseID: existing.ID}, nil
		}
	}

	if err := s.checkSession(session); err != nil {
		log.WithError(err).Warn("Checkout session failed integrity checks")
		return nil, err
	}

	items, total, err := s.verifyItems(ctx, log, session)
	if err != nil {
		return nil, err
	}

	completedAt := s.now().UTC()
	purchase := models.Purchase{
		ID:            uuid.NewString(),
		SessionID:     session.ID,
		CustomerEmail: strings.ToLower(session.CustomerEmail),
		Items:         items,
		TotalAmount:   total,
		Status:        models.PurchaseCompleted,
		CreatedAt:     session.Created.UTC(),
		CompletedAt:   &completedAt,
	}
	if err := s.purchases.Create(ctx, purchase); err != nil {
		if errors.Is(err, store.ErrDuplicateRecord) {
			s.markProcessed(ctx, log, session.ID)
			log.Info("Concurrent delivery already recorded the purchase")
			return &ReconcileResult{Status: ReconcileDuplicate}, nil
		}
		return nil, fmt.Errorf("failed to save purchase: %w", err)
	}
	s.markProcessed(ctx, log, session.ID)

	log.WithFields(logrus.Fields{
		"purchase_id": purchase.ID,
		"customer":    security.ObfuscateEmail(purchase.CustomerEmail),
		"total":       total.StringFixed(2),
	}).Info("Purchase recorded")

	s.sendConfirmation(ctx, log, &purchase)
	return &ReconcileResult{Status: ReconcileProcessed, PurchaseID: purchase.ID}, nil
}

func (s *ReconcilerService) checkSession(session *payment.Session) error {
	switch {
	case session.ID == "":
		return integrityf("session id missing")
	case session.CustomerEmail == "":
		return integrityf("customer email missing")
	case !session.AmountTotal.IsPositive():
		return integrityf("confirmed amount missing")
	case session.PaymentStatus != payment.PaymentStatusPaid:
		return integrityf("payment status is %q", session.PaymentStatus)
	case session.Created.IsZero() || s.now().Sub(session.Created) > maxSessionAge:
		return integrityf("session too old")
	}
	return nil
}

// verifyItems re-reads every ordered product from the catalog and checks the
// recomputed total against the amount the provider confirmed.
func (s *ReconcilerService) verifyItems(ctx context.Context, log *logrus.Entry, session *payment.Session) ([]models.PurchaseItem, decimal.Decimal, error) {
	raw, err := payment.DecodeOrderItems(session.Metadata)
	if err != nil {
		log.WithError(err).Warn("Order metadata missing")
		return nil, decimal.Zero, integrityf("order metadata missing")
	}
	md, err := models.ParseOrderMetadata(raw)
	if err != nil {
		log.WithError(err).Warn("Order metadata invalid")
		return nil, decimal.Zero, integrityf("order metadata invalid")
	}

	items := make([]models.PurchaseItem, 0, len(md.Items))
	total := decimal.Zero
	for _, line := range md.Items {
		product, err := s.products.Get(ctx, line.ID)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				log.WithField("product_id", line.ID).Warn("Ordered product no longer exists")
				return nil, decimal.Zero, integrityf("product %s not found", line.ID)
			}
			return nil, decimal.Zero, fmt.Errorf("failed to look up product %s: %w", line.ID, err)
		}
		if line.Price.Sub(product.Price).Abs().GreaterThan(priceTolerance) {
			log.WithField("product_id", line.ID).Warn("Ordered price differs from catalog")
			return nil, decimal.Zero, integrityf("price mismatch for product %s", line.ID)
		}

		item := models.PurchaseItem{
			ProductID:   product.ID,
			ProductName: product.Name,
			Price:       product.Price,
			Quantity:    line.Quantity,
		}
		if product.Repository != nil {
			item.RepositoryAccess = &models.RepositoryAccess{
				Owner: product.Repository.Owner,
				Repo:  product.Repository.Name,
			}
		}
		items = append(items, item)
		total = total.Add(product.Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	if total.Sub(session.AmountTotal).Abs().GreaterThan(priceTolerance) {
		log.WithFields(logrus.Fields{
			"computed":  total.StringFixed(2),
			"confirmed": session.AmountTotal.StringFixed(2),
		}).Warn("Order total does not match confirmed amount")
		return nil, decimal.Zero, integrityf("amount mismatch")
	}
	return items, total, nil
}

func (s *ReconcilerService) markProcessed(ctx context.Context, log *logrus.Entry, sessionID string) {
	if err := s.processed.Mark(ctx, sessionID); err != nil {
		log.WithError(err).Warn("Failed to mark session processed")
	}
}

func (s *ReconcilerService) sendConfirmation(ctx context.Context, log *logrus.Entry, p *models.Purchase) {
	if s.mail == nil {
		return
	}
	_, err := s.mail.Send(ctx, mailer.Message{
		From:    s.emailFrom,
		To:      p.CustomerEmail,
		Subject: "Your Digital Store purchase",
		HTML:    renderConfirmation(p),
	})
	if err != nil {
		log.WithError(err).Warn("Failed to send purchase confirmation")
	}
}

func renderConfirmation(p *models.Purchase) string {
	var b strings.Builder
	b.WriteString("<h2>Thank you for your purchase!</h2><ul>")
	for _, item := range p.Items {
		fmt.Fprintf(&b, "<li>%s &times; %d &mdash; $%s</li>",
			security.EscapeHTML(item.ProductName), item.Quantity, item.Price.StringFixed(2))
	}
	fmt.Fprintf(&b, "</ul><p>Total: $%s</p>", p.TotalAmount.StringFixed(2))
	b.WriteString("<p>Products that include source code can be unlocked from the repository access page.</p>")
	return b.String()
}
