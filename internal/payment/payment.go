// Package payment talks to the hosted-checkout provider. Services depend on
// the types here, never on the provider SDK.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const EventCheckoutCompleted = "checkout.session.completed"

const PaymentStatusPaid = "paid"

var (
	ErrInvalidSignature = errors.New("payment: invalid webhook signature")
	ErrMalformedEvent   = errors.New("payment: malformed webhook event")
)

type LineItem struct {
	Name        string
	Description string
	Image       string
	UnitAmount  decimal.Decimal
	Quantity    int64
}

type SessionRequest struct {
	LineItems  []LineItem
	SuccessURL string
	CancelURL  string
	Metadata   map[string]string
}

type Session struct {
	ID            string
	URL           string
	PaymentStatus string
	CustomerEmail string
	AmountTotal   decimal.Decimal
	Metadata      map[string]string
	Created       time.Time
}

type Event struct {
	ID      string
	Type    string
	Created time.Time
	// Session is set for checkout session events.
	Session *Session
}

type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	RetrieveSession(ctx context.Context, sessionID string) (*Session, error)
	ParseWebhook(payload []byte, signature string) (*Event, error)
}

// ToMinorUnits converts a decimal amount to cents.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

func FromMinorUnits(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
