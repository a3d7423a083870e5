package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"

	custommw "github.com/contentdesk/contentdesk/pkg/api/middleware"
	"github.com/contentdesk/contentdesk/pkg/billing"
	"github.com/contentdesk/contentdesk/pkg/cache"
	"github.com/contentdesk/contentdesk/pkg/entitlement"
	"github.com/contentdesk/contentdesk/pkg/logger"
	"github.com/contentdesk/contentdesk/pkg/models"
	"github.com/contentdesk/contentdesk/pkg/session"
	"github.com/contentdesk/contentdesk/pkg/store"
)

// stubGateway serves canned checkout sessions without touching Stripe.
type stubGateway struct {
	sessions  map[string]*stripe.CheckoutSession
	createErr error
}

func (g *stubGateway) CreateSession(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	if g.createErr != nil {
		return nil, g.createErr
	}
	return &stripe.CheckoutSession{
		ID:  "cs_test_handler",
		URL: "https://checkout.stripe.com/pay/cs_test_handler",
	}, nil
}

func (g *stubGateway) GetSession(sessionID string) (*stripe.CheckoutSession, error) {
	s, ok := g.sessions[sessionID]
	if !ok {
		return nil, errors.New("no such session")
	}
	return s, nil
}

func (g *stubGateway) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	return stripe.Event{}, errors.New("bad signature")
}

type billingFixture struct {
	handler *BillingHandler
	gateway *stubGateway
	mem     *store.Memory
	sess    session.Session
}

func setupBillingHandler(t *testing.T) *billingFixture {
	t.Helper()

	mr := miniredis.RunT(t)
	cacheClient, err := cache.NewClient("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { cacheClient.Close() })

	log := logger.Default()
	mem := store.NewMemory()
	ent := entitlement.NewService(mem.Users(), nil, log)
	gateway := &stubGateway{sessions: map[string]*stripe.CheckoutSession{}}
	svc := billing.NewService(mem.Users(), ent, cacheClient, gateway, nil, "https://app.contentdesk.io", log)

	id, err := mem.Users().Create(context.Background(), &store.User{
		Email:     "buyer@example.com",
		Tier:      store.TierFree,
		Tokens:    5,
		LastReset: time.Now(),
	})
	require.NoError(t, err)

	return &billingFixture{
		handler: NewBillingHandler(svc, nil),
		gateway: gateway,
		mem:     mem,
		sess:    session.Session{UserID: id, Email: "buyer@example.com", Tier: store.TierFree},
	}
}

func (f *billingFixture) newContext(t *testing.T, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	e := echo.New()
	var req *http.Request
	if body != "" {
		req = jsonRequest(method, target, body)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(custommw.SessionKey, f.sess)
	return c, rec
}

func TestCheckoutSubscription_ReturnsURL(t *testing.T) {
	f := setupBillingHandler(t)

	c, rec := f.newContext(t, http.MethodPost, "/api/billing/checkout-subscription", "")
	require.NoError(t, f.handler.CheckoutSubscription(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp models.CheckoutResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.URL, "checkout.stripe.com")
}

func TestCheckoutSubscription_SurfacesGatewayError(t *testing.T) {
	f := setupBillingHandler(t)
	f.gateway.createErr = errors.New("Invalid currency: usd is not supported on this account")

	c, rec := f.newContext(t, http.MethodPost, "/api/billing/checkout-subscription", "")
	require.NoError(t, f.handler.CheckoutSubscription(c))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "payment_gateway_error", resp.Error)
	// The provider's own message reaches the user unchanged
	assert.Equal(t, "Invalid currency: usd is not supported on this account", resp.Message)
}

func TestCheckoutTokens_SurfacesGatewayError(t *testing.T) {
	f := setupBillingHandler(t)
	f.gateway.createErr = errors.New("Your account cannot currently make live charges.")

	c, rec := f.newContext(t, http.MethodPost, "/api/billing/checkout-tokens", `{"bundle":"small"}`)
	require.NoError(t, f.handler.CheckoutTokens(c))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "payment_gateway_error", resp.Error)
	assert.Equal(t, "Your account cannot currently make live charges.", resp.Message)
}

func TestCheckoutTokens_UnknownBundle(t *testing.T) {
	f := setupBillingHandler(t)

	c, rec := f.newContext(t, http.MethodPost, "/api/billing/checkout-tokens", `{"bundle":"mega"}`)
	require.NoError(t, f.handler.CheckoutTokens(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "unknown_bundle", resp.Error)
}

func TestConfirmCheckout_CreditsTokens(t *testing.T) {
	f := setupBillingHandler(t)
	f.gateway.sessions["cs_paid"] = &stripe.CheckoutSession{
		ID:                "cs_paid",
		ClientReferenceID: f.sess.UserID,
		PaymentStatus:     stripe.CheckoutSessionPaymentStatusPaid,
		Metadata:          map[string]string{"purpose": "tokens", "bundle": "small", "tokens": "50"},
		AmountTotal:       500,
	}

	c, rec := f.newContext(t, http.MethodPost, "/api/billing/confirm", `{"session_id":"cs_paid"}`)
	require.NoError(t, f.handler.ConfirmCheckout(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var result billing.ConfirmResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "tokens", result.Purpose)
	assert.Equal(t, 50, result.TokensCredited)
	assert.False(t, result.AlreadyProcessed)

	u, err := f.mem.Users().Get(context.Background(), f.sess.UserID)
	require.NoError(t, err)
	assert.Equal(t, 55, u.Tokens)
}

func TestConfirmCheckout_SecondCallIsIdempotent(t *testing.T) {
	f := setupBillingHandler(t)
	f.gateway.sessions["cs_paid"] = &stripe.CheckoutSession{
		ID:                "cs_paid",
		ClientReferenceID: f.sess.UserID,
		PaymentStatus:     stripe.CheckoutSessionPaymentStatusPaid,
		Metadata:          map[string]string{"purpose": "tokens", "bundle": "small", "tokens": "50"},
		AmountTotal:       500,
	}

	c, _ := f.newContext(t, http.MethodPost, "/api/billing/confirm", `{"session_id":"cs_paid"}`)
	require.NoError(t, f.handler.ConfirmCheckout(c))

	c, rec := f.newContext(t, http.MethodPost, "/api/billing/confirm", `{"session_id":"cs_paid"}`)
	require.NoError(t, f.handler.ConfirmCheckout(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var result billing.ConfirmResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.AlreadyProcessed)

	u, err := f.mem.Users().Get(context.Background(), f.sess.UserID)
	require.NoError(t, err)
	assert.Equal(t, 55, u.Tokens, "tokens should only be credited once")
}

func TestConfirmCheckout_UnpaidConflicts(t *testing.T) {
	f := setupBillingHandler(t)
	f.gateway.sessions["cs_open"] = &stripe.CheckoutSession{
		ID:            "cs_open",
		PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid,
		Metadata:      map[string]string{"purpose": "tokens"},
	}

	c, rec := f.newContext(t, http.MethodPost, "/api/billing/confirm", `{"session_id":"cs_open"}`)
	require.NoError(t, f.handler.ConfirmCheckout(c))
	assert.Equal(t, http.StatusConflict, rec.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "payment_not_completed", resp.Error)
}

func TestStripeWebhook_BadSignature(t *testing.T) {
	f := setupBillingHandler(t)

	c, rec := f.newContext(t, http.MethodPost, "/api/billing/webhook", `{"type":"checkout.session.completed"}`)
	require.NoError(t, f.handler.StripeWebhook(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetPricing(t *testing.T) {
	f := setupBillingHandler(t)

	c, rec := f.newContext(t, http.MethodGet, "/api/billing/pricing", "")
	require.NoError(t, f.handler.GetPricing(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var pricing billing.Pricing
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pricing))
	assert.Equal(t, int64(1000), pricing.PremiumPriceCents)
	assert.Len(t, pricing.Bundles, 2)
}
