package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"digistore/internal/mailer"
	"digistore/internal/models"
	"digistore/internal/payment"
	"digistore/internal/store"
)

type testStores struct {
	products    *store.ProductRepository
	purchases   *store.PurchaseRepository
	subscribers *store.SubscriberRepository
}

func newTestStores(t *testing.T) testStores {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	stores := testStores{
		products:    store.NewProductRepository(fs),
		purchases:   store.NewPurchaseRepository(fs),
		subscribers: store.NewSubscriberRepository(fs),
	}
	_, err = stores.products.SeedDefaults(context.Background())
	require.NoError(t, err)
	return stores
}

func newTestLogger() (*logrus.Logger, *test.Hook) {
	return test.NewNullLogger()
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeGateway struct {
	mu        sync.Mutex
	created   []payment.SessionRequest
	createErr error
	sessions  map[string]*payment.Session
	event     *payment.Event
	parseErr  error
}

func (g *fakeGateway) CreateSession(_ context.Context, req payment.SessionRequest) (*payment.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return nil, g.createErr
	}
	g.created = append(g.created, req)
	return &payment.Session{ID: "cs_test_new", URL: "https://pay.example/cs_test_new"}, nil
}

func (g *fakeGateway) RetrieveSession(_ context.Context, id string) (*payment.Session, error) {
	s, ok := g.sessions[id]
	if !ok {
		return nil, errors.New("no such session")
	}
	return s, nil
}

func (g *fakeGateway) ParseWebhook(_ []byte, _ string) (*payment.Event, error) {
	if g.parseErr != nil {
		return nil, g.parseErr
	}
	return g.event, nil
}

func (g *fakeGateway) createCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.created)
}

type fakeSource struct {
	mu     sync.Mutex
	calls  int
	addErr error
	level  string
}

func (f *fakeSource) AddCollaborator(_ context.Context, _, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.addErr
}

func (f *fakeSource) PermissionLevel(_ context.Context, _, _, _ string) (string, error) {
	return f.level, nil
}

type fakeSender struct {
	mu        sync.Mutex
	sent      []mailer.Message
	failFor   map[string]bool
	simulated bool
}

func (f *fakeSender) Send(_ context.Context, msg mailer.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[msg.To] {
		return "", errors.New("provider rejected message")
	}
	f.sent = append(f.sent, msg)
	return "email_" + msg.To, nil
}

func (f *fakeSender) Simulated() bool { return f.simulated }

type unlimited struct{}

func (unlimited) Allow(context.Context, string) (bool, time.Duration, error) {
	return true, 0, nil
}

// completedSessionEvent builds a paid checkout event whose metadata orders
// the given lines.
func completedSessionEvent(t *testing.T, sessionID string, amount decimal.Decimal, lines ...models.OrderLine) *payment.Event {
	t.Helper()
	raw, err := models.NewOrderMetadata(lines).Marshal()
	require.NoError(t, err)
	now := time.Now()
	return &payment.Event{
		ID:      "evt_" + sessionID,
		Type:    payment.EventCheckoutCompleted,
		Created: now,
		Session: &payment.Session{
			ID:            sessionID,
			PaymentStatus: payment.PaymentStatusPaid,
			CustomerEmail: "Buyer@Example.com",
			AmountTotal:   amount,
			Metadata:      payment.EncodeOrderItems(raw),
			Created:       now.Add(-time.Minute),
		},
	}
}
