// Package billing creates Stripe checkout sessions and reconciles completed
// payments into entitlement changes. Both the browser redirect callback and
// the Stripe webhook funnel into the same confirmation path, guarded by a
// per-session idempotency key, so a payment is credited at most once no
// matter which signal arrives first or how often either repeats.
package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v76"

	"github.com/contentdesk/contentdesk/pkg/cache"
	"github.com/contentdesk/contentdesk/pkg/email"
	"github.com/contentdesk/contentdesk/pkg/entitlement"
	"github.com/contentdesk/contentdesk/pkg/logger"
	"github.com/contentdesk/contentdesk/pkg/session"
	"github.com/contentdesk/contentdesk/pkg/store"
)

var (
	// ErrPaymentNotCompleted is returned when a checkout session has not
	// been paid yet.
	ErrPaymentNotCompleted = errors.New("payment not completed")
	// ErrUnknownBundle is returned for an unrecognized token bundle name.
	ErrUnknownBundle = errors.New("unknown token bundle")
)

// Purchase purposes carried in checkout session metadata.
const (
	purposeSubscription = "subscription"
	purposeTokens       = "tokens"
)

// Monthly Premium price in cents.
const premiumPriceCents = 1000

// TokenBundle is a one-time token purchase option.
type TokenBundle struct {
	Name       string `json:"name"`
	Tokens     int    `json:"tokens"`
	PriceCents int64  `json:"price_cents"`
}

// Bundles returns the available token bundles.
func Bundles() []TokenBundle {
	return []TokenBundle{
		{Name: "small", Tokens: 50, PriceCents: 500},
		{Name: "large", Tokens: 200, PriceCents: 1500},
	}
}

func bundleByName(name string) (TokenBundle, bool) {
	for _, b := range Bundles() {
		if b.Name == name {
			return b, true
		}
	}
	return TokenBundle{}, false
}

// Pricing is the static pricing payload served to the dashboard.
type Pricing struct {
	PremiumPriceCents  int64         `json:"premium_price_cents"`
	PremiumTokens      int           `json:"premium_tokens"`
	FreeTokens         int           `json:"free_tokens"`
	Bundles            []TokenBundle `json:"bundles"`
	SubscriptionPeriod string        `json:"subscription_period"`
}

// ConfirmResult reports what a confirmed checkout session did to the account.
type ConfirmResult struct {
	Purpose          string                   `json:"purpose"`
	TokensCredited   int                      `json:"tokens_credited,omitempty"`
	AlreadyProcessed bool                     `json:"already_processed"`
	Entitlement      *entitlement.Entitlement `json:"entitlement,omitempty"`
}

// Service handles checkout and payment reconciliation.
type Service struct {
	users       store.UserStore
	entitlement *entitlement.Service
	cache       *cache.Client
	gateway     Gateway
	emails      *email.Service
	frontendURL string
	log         logger.Logger
}

// NewService creates a new billing service. emails may be nil; receipts are
// then skipped.
func NewService(users store.UserStore, ent *entitlement.Service, cacheClient *cache.Client, gateway Gateway, emails *email.Service, frontendURL string, log logger.Logger) *Service {
	return &Service{
		users:       users,
		entitlement: ent,
		cache:       cacheClient,
		gateway:     gateway,
		emails:      emails,
		frontendURL: frontendURL,
		log:         log,
	}
}

// CreateSubscriptionCheckout opens a hosted checkout for the monthly Premium
// subscription and returns its redirect URL.
func (s *Service) CreateSubscriptionCheckout(ctx context.Context, sess session.Session) (string, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		CustomerEmail:     stripe.String(sess.Email),
		ClientReferenceID: stripe.String(sess.UserID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyUSD)),
					UnitAmount: stripe.Int64(premiumPriceCents),
					Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
						Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
					},
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("ContentDesk Premium"),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(s.frontendURL + "?success=true&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(s.frontendURL + "?cancel=true"),
		Metadata: map[string]string{
			"purpose": purposeSubscription,
			"user_id": sess.UserID,
		},
	}

	checkout, err := s.gateway.CreateSession(params)
	if err != nil {
		return "", &GatewayError{Err: err}
	}

	s.log.Info("subscription checkout created", "user_id", sess.UserID, "session_id", checkout.ID)
	return checkout.URL, nil
}

// CreateTokenCheckout opens a one-time checkout for a token bundle.
func (s *Service) CreateTokenCheckout(ctx context.Context, sess session.Session, bundleName string) (string, error) {
	bundle, ok := bundleByName(bundleName)
	if !ok {
		return "", ErrUnknownBundle
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail:     stripe.String(sess.Email),
		ClientReferenceID: stripe.String(sess.UserID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(string(stripe.CurrencyUSD)),
					UnitAmount: stripe.Int64(bundle.PriceCents),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("ContentDesk %d-token bundle", bundle.Tokens)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(s.frontendURL + "?token_success=true&session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(s.frontendURL + "?cancel=true"),
		Metadata: map[string]string{
			"purpose": purposeTokens,
			"user_id": sess.UserID,
			"bundle":  bundle.Name,
			"tokens":  strconv.Itoa(bundle.Tokens),
		},
	}

	checkout, err := s.gateway.CreateSession(params)
	if err != nil {
		return "", &GatewayError{Err: err}
	}

	s.log.Info("token checkout created", "user_id", sess.UserID, "bundle", bundle.Name, "session_id", checkout.ID)
	return checkout.URL, nil
}

// ConfirmCheckout reconciles a checkout session by ID. Called from the
// browser redirect callback; the webhook path lands in confirmSession with
// the session it already carries.
func (s *Service) ConfirmCheckout(ctx context.Context, sessionID string) (*ConfirmResult, error) {
	checkout, err := s.gateway.GetSession(sessionID)
	if err != nil {
		return nil, &GatewayError{Err: err}
	}
	return s.confirmSession(ctx, checkout)
}

// HandleWebhook verifies and processes a Stripe webhook delivery.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.gateway.ConstructEvent(payload, signature)
	if err != nil {
		return fmt.Errorf("webhook signature verification failed: %w", err)
	}

	switch event.Type {
	case "checkout.session.completed":
		var checkout stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &checkout); err != nil {
			return fmt.Errorf("failed to unmarshal checkout session: %w", err)
		}
		_, err := s.confirmSession(ctx, &checkout)
		return err
	default:
		s.log.Debug("unhandled stripe event", "type", event.Type)
	}
	return nil
}

func (s *Service) confirmSession(ctx context.Context, checkout *stripe.CheckoutSession) (*ConfirmResult, error) {
	if checkout.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return nil, ErrPaymentNotCompleted
	}

	userID := checkout.ClientReferenceID
	if userID == "" {
		return nil, fmt.Errorf("checkout session %s has no client reference", checkout.ID)
	}

	// At-most-once: whoever claims the key first processes the session;
	// every later arrival (retry, second tab, webhook) is a no-op.
	key := "billing:confirmed:" + checkout.ID
	claimed, err := s.cache.SetNX(ctx, key, "1", 30*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("failed to claim payment session: %w", err)
	}
	if !claimed {
		s.log.Info("checkout session already processed", "session_id", checkout.ID)
		return &ConfirmResult{
			Purpose:          checkout.Metadata["purpose"],
			AlreadyProcessed: true,
		}, nil
	}

	switch checkout.Metadata["purpose"] {
	case purposeTokens:
		tokens, err := strconv.Atoi(checkout.Metadata["tokens"])
		if err != nil || tokens <= 0 {
			return nil, fmt.Errorf("invalid token count in session %s metadata", checkout.ID)
		}
		ent, err := s.entitlement.Credit(ctx, userID, tokens)
		if err != nil {
			// Release the claim so a retry can credit the payment
			if delErr := s.cache.Delete(ctx, key); delErr != nil {
				s.log.Error("failed to release payment claim", "session_id", checkout.ID, "error", delErr)
			}
			return nil, err
		}
		s.log.Info("token purchase confirmed", "user_id", userID, "tokens", tokens, "session_id", checkout.ID)
		s.sendReceipt(ctx, userID, fmt.Sprintf("%d-token bundle", tokens), checkout.AmountTotal)
		return &ConfirmResult{Purpose: purposeTokens, TokensCredited: tokens, Entitlement: ent}, nil

	case purposeSubscription:
		ent, err := s.entitlement.Upgrade(ctx, userID)
		if err != nil {
			if delErr := s.cache.Delete(ctx, key); delErr != nil {
				s.log.Error("failed to release payment claim", "session_id", checkout.ID, "error", delErr)
			}
			return nil, err
		}
		s.log.Info("subscription confirmed", "user_id", userID, "session_id", checkout.ID)
		s.sendReceipt(ctx, userID, "Premium subscription (monthly)", checkout.AmountTotal)
		return &ConfirmResult{Purpose: purposeSubscription, Entitlement: ent}, nil

	default:
		return nil, fmt.Errorf("checkout session %s has unknown purpose %q", checkout.ID, checkout.Metadata["purpose"])
	}
}

func (s *Service) sendReceipt(ctx context.Context, userID, description string, amountCents int64) {
	if s.emails == nil {
		return
	}
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		s.log.Warn("receipt skipped, user lookup failed", "user_id", userID, "error", err)
		return
	}
	if err := s.emails.SendReceiptEmail(u.Email, u.Name, description, amountCents); err != nil {
		s.log.Warn("receipt email failed", "user_id", userID, "error", err)
	}
}

// GetPricing returns the static pricing payload.
func (s *Service) GetPricing() Pricing {
	return Pricing{
		PremiumPriceCents:  premiumPriceCents,
		PremiumTokens:      entitlement.PremiumMonthlyTokens,
		FreeTokens:         entitlement.FreeMonthlyTokens,
		Bundles:            Bundles(),
		SubscriptionPeriod: "month",
	}
}
