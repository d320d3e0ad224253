package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digistore/internal/cart"
	"digistore/internal/imagehost"
	"digistore/internal/mailer"
	"digistore/internal/payment"
	"digistore/internal/service"
	"digistore/internal/store"
)

const testPassword = "hunter2"

type stubGateway struct {
	event *payment.Event
}

func (g *stubGateway) CreateSession(context.Context, payment.SessionRequest) (*payment.Session, error) {
	return &payment.Session{ID: "cs_stub", URL: "https://pay.example/cs_stub"}, nil
}

func (g *stubGateway) RetrieveSession(_ context.Context, id string) (*payment.Session, error) {
	return nil, errors.New("unknown session " + id)
}

func (g *stubGateway) ParseWebhook([]byte, string) (*payment.Event, error) {
	if g.event == nil {
		return nil, payment.ErrInvalidSignature
	}
	return g.event, nil
}

type stubSource struct{}

func (stubSource) AddCollaborator(context.Context, string, string, string) error { return nil }

func (stubSource) PermissionLevel(context.Context, string, string, string) (string, error) {
	return "read", nil
}

type testServer struct {
	handler http.Handler
	gateway *stubGateway
}

func newTestServer(t *testing.T, trustedProxies ...string) testServer {
	t.Helper()
	logger, _ := test.NewNullLogger()
	ctx := context.Background()

	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	products := store.NewProductRepository(fs)
	purchases := store.NewPurchaseRepository(fs)
	subscribers := store.NewSubscriberRepository(fs)
	_, err = products.SeedDefaults(ctx)
	require.NoError(t, err)

	uploader, err := imagehost.NewLocalUploader(t.TempDir())
	require.NoError(t, err)

	gw := &stubGateway{}
	sender := mailer.NewLogSender(logger)
	gate := service.NewAdminGate(logger, testPassword, []string{"10.0.0.5"})

	router := NewRouter(logger, RouterConfig{
		Catalog:        service.NewCatalogService(logger, products),
		Checkout:       service.NewCheckoutService(logger, products, gw, store.NewMemoryRateLimiter(5, time.Minute), "https://shop.example"),
		Reconciler:     service.NewReconcilerService(logger, products, purchases, gw, store.NewMemorySessionSet(1000, 500), sender, "store@example.com"),
		Access:         service.NewAccessService(logger, products, purchases, stubSource{}, store.NewMemoryRateLimiter(5, time.Hour)),
		Newsletter:     service.NewNewsletterService(logger, subscribers, sender, "news@example.com", "https://shop.example"),
		Uploads:        service.NewUploadService(logger, uploader),
		Gate:           gate,
		UploadDir:      uploader.Dir(),
		TrustedProxies: trustedProxies,
	})
	return testServer{handler: router, gateway: gw}
}

func (s testServer) do(t *testing.T, method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "10.0.0.5:41000"
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

// doVia sends a request from remote carrying the given X-Forwarded-For value.
func (s testServer) doVia(t *testing.T, remote, forwarded, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = remote
	if forwarded != "" {
		req.Header.Set("X-Forwarded-For", forwarded)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s testServer) login(t *testing.T) *http.Cookie {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/admin/auth", `{"password":"`+testPassword+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	for _, c := range rec.Result().Cookies() {
		if c.Name == AdminCookieName {
			assert.True(t, c.HttpOnly)
			assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
			return c
		}
	}
	t.Fatal("no admin cookie issued")
	return nil
}

func TestHealthz(t *testing.T) {
	rec := newTestServer(t).do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestProductsPublicReadAdminWrite(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/products?featured=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var products []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &products))
	assert.Len(t, products, 2)
	assert.Equal(t, float64(49), products[0]["price"])

	body := `{"name":"Motion Kit","description":"Animations","price":29,"category":"ui-kits","tags":"motion,kit"}`
	rec = s.do(t, http.MethodPost, "/products", body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	cookie := s.login(t)
	rec = s.do(t, http.MethodPost, "/products", body, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":"5"`)

	rec = s.do(t, http.MethodPut, "/products/5", `{"featured":true}`, cookie)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/products/5", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"featured":true`)

	rec = s.do(t, http.MethodDelete, "/products/5", "", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodGet, "/products/5", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPatch, "/products/1", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAdminAuthFlow(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/admin/auth", `{"password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/admin/auth", strings.NewReader(`{"password":"`+testPassword+`"}`))
	req.RemoteAddr = "198.51.100.77:5000"
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	cookie := s.login(t)
	rec = s.do(t, http.MethodGet, "/admin/auth", "", cookie)
	assert.JSONEq(t, `{"authenticated":true}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/admin/auth", "")
	assert.JSONEq(t, `{"authenticated":false}`, rec.Body.String())

	rec = s.do(t, http.MethodDelete, "/admin/auth", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, "", cleared[0].Value)
	assert.True(t, cleared[0].MaxAge < 0)
}

func TestForwardedForIgnoredFromUntrustedPeer(t *testing.T) {
	s := newTestServer(t, "10.0.0.9")
	login := `{"password":"` + testPassword + `"}`

	rec := s.doVia(t, "203.0.113.9:5000", "127.0.0.1", http.MethodPost, "/admin/auth", login)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.doVia(t, "203.0.113.9:5000", "10.0.0.5", http.MethodPost, "/admin/auth", login)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.doVia(t, "10.0.0.9:443", "10.0.0.5", http.MethodPost, "/admin/auth", login)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.doVia(t, "10.0.0.9:443", "198.51.100.4", http.MethodPost, "/admin/auth", login)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCheckoutRateLimitIgnoresSpoofedForwardedFor(t *testing.T) {
	s := newTestServer(t)
	body := `{"items":[{"product":{"id":"3","name":"Icon Pack - Business","price":19},"quantity":1}]}`

	for i := 0; i < 5; i++ {
		rec := s.doVia(t, "203.0.113.9:5000", fmt.Sprintf("198.51.100.%d", i), http.MethodPost, "/checkout", body)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := s.doVia(t, "203.0.113.9:5000", "198.51.100.200", http.MethodPost, "/checkout", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestCheckoutRateLimitSetsRetryAfter(t *testing.T) {
	s := newTestServer(t)
	body := `{"items":[{"product":{"id":"3","name":"Icon Pack - Business","price":19},"quantity":1}]}`

	for i := 0; i < 5; i++ {
		rec := s.do(t, http.MethodPost, "/checkout", body)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"sessionId":"cs_stub","url":"https://pay.example/cs_stub"}`, rec.Body.String())
	}
	rec := s.do(t, http.MethodPost, "/checkout", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestCheckoutAcceptsCartItems(t *testing.T) {
	s := newTestServer(t)
	logger, _ := test.NewNullLogger()
	reducer := cart.NewReducer(logger)

	products := store.DefaultProducts()
	c := reducer.Reduce(cart.Empty(), cart.Add(products[0], 2))
	c = reducer.Reduce(c, cart.Add(products[2]))

	body, err := json.Marshal(map[string]any{"items": c.Items})
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/checkout", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"sessionId":"cs_stub","url":"https://pay.example/cs_stub"}`, rec.Body.String())
}

func TestCheckoutErrorsAreGeneric(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/checkout", `{"items":[{"product":{"id":"1","name":"Kit","price":1},"quantity":1}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid request"}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/checkout", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/checkout/verify?session_id=cs_x", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestWebhookBadSignature(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=bad")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid request"}`, rec.Body.String())
}

func TestWebhookIgnoredEvent(t *testing.T) {
	s := newTestServer(t)
	s.gateway.event = &payment.Event{ID: "evt_1", Type: "customer.created", Created: time.Now()}

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payment", strings.NewReader(`{}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=ok")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true,"status":"ignored"}`, rec.Body.String())
}

func TestRepositoryAccessNotFound(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodPost, "/repository-access", `{"email":"a@b.co","githubUsername":"octocat","productId":"1"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Not found"}`, rec.Body.String())
}

func TestNewsletterEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/newsletter/subscribe", `{"email":"Reader@Example.com"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"subscriberCount":1`)

	rec = s.do(t, http.MethodPost, "/newsletter/subscribe", `{"email":"reader@example.com"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/newsletter/subscribe", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	cookie := s.login(t)
	rec = s.do(t, http.MethodGet, "/newsletter/subscribe", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = s.do(t, http.MethodGet, "/newsletter/export?format=csv", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Email,Subscribed At,IP Address,User Agent\n"))

	rec = s.do(t, http.MethodGet, "/newsletter/export?format=stats", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total":1`)

	rec = s.do(t, http.MethodGet, "/newsletter/export?format=xml", "", cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/newsletter/send", `{"subject":"Hi","message":"Hello"}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"isSimulation":true`)

	rec = s.do(t, http.MethodDelete, "/newsletter/subscribe?email=reader@example.com", "", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUploadServesLocalFile(t *testing.T) {
	s := newTestServer(t)
	cookie := s.login(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="pixel.png"`)
	h.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	part.Write([]byte("\x89PNG fake"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.RemoteAddr = "10.0.0.5:41000"
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var out struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.True(t, strings.HasPrefix(out.URL, "/uploads/"))

	rec = s.do(t, http.MethodGet, out.URL, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "\x89PNG fake", rec.Body.String())
}

func TestUploadRequiresAdmin(t *testing.T) {
	rec := newTestServer(t).do(t, http.MethodPost, "/upload", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
