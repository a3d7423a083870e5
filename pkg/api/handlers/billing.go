package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	apierrors "github.com/contentdesk/contentdesk/pkg/api/errors"
	custommw "github.com/contentdesk/contentdesk/pkg/api/middleware"
	"github.com/contentdesk/contentdesk/pkg/billing"
	"github.com/contentdesk/contentdesk/pkg/metrics"
	"github.com/contentdesk/contentdesk/pkg/models"
)

// BillingHandler handles checkout and payment reconciliation endpoints
type BillingHandler struct {
	billing   *billing.Service
	metrics   *metrics.Metrics
	validator *validator.Validate
}

// NewBillingHandler creates a new billing handler. m may be nil.
func NewBillingHandler(svc *billing.Service, m *metrics.Metrics) *BillingHandler {
	return &BillingHandler{
		billing:   svc,
		metrics:   m,
		validator: validator.New(),
	}
}

// CheckoutSubscription opens a Premium subscription checkout.
func (h *BillingHandler) CheckoutSubscription(c echo.Context) error {
	sess, ok := custommw.CurrentSession(c)
	if !ok {
		return apierrors.UnauthorizedError(c)
	}

	url, err := h.billing.CreateSubscriptionCheckout(c.Request().Context(), sess)
	if err != nil {
		return paymentError(c, err)
	}
	return c.JSON(http.StatusOK, models.CheckoutResponse{URL: url})
}

// CheckoutTokens opens a token bundle checkout.
func (h *BillingHandler) CheckoutTokens(c echo.Context) error {
	sess, ok := custommw.CurrentSession(c)
	if !ok {
		return apierrors.UnauthorizedError(c)
	}

	var req models.CheckoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}

	url, err := h.billing.CreateTokenCheckout(c.Request().Context(), sess, req.Bundle)
	if err != nil {
		if errors.Is(err, billing.ErrUnknownBundle) {
			return c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "unknown_bundle",
				Message: "Unknown token bundle",
			})
		}
		return paymentError(c, err)
	}
	return c.JSON(http.StatusOK, models.CheckoutResponse{URL: url})
}

// ConfirmCheckout reconciles a checkout session after the browser redirect.
func (h *BillingHandler) ConfirmCheckout(c echo.Context) error {
	if _, ok := custommw.CurrentSession(c); !ok {
		return apierrors.UnauthorizedError(c)
	}

	var req models.ConfirmCheckoutRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}
	if err := h.validator.Struct(req); err != nil {
		return apierrors.ValidationError(c, err)
	}

	result, err := h.billing.ConfirmCheckout(c.Request().Context(), req.SessionID)
	if err != nil {
		if errors.Is(err, billing.ErrPaymentNotCompleted) {
			return c.JSON(http.StatusConflict, models.ErrorResponse{
				Error:   "payment_not_completed",
				Message: "The payment has not completed yet",
			})
		}
		return paymentError(c, err)
	}

	h.recordConfirm(result)
	return c.JSON(http.StatusOK, result)
}

// StripeWebhook receives payment events from Stripe.
func (h *BillingHandler) StripeWebhook(c echo.Context) error {
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.NoContent(http.StatusBadRequest)
	}

	signature := c.Request().Header.Get("Stripe-Signature")
	if err := h.billing.HandleWebhook(c.Request().Context(), payload, signature); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error: "webhook_error",
		})
	}

	return c.NoContent(http.StatusOK)
}

// GetPricing returns the static pricing payload.
func (h *BillingHandler) GetPricing(c echo.Context) error {
	return c.JSON(http.StatusOK, h.billing.GetPricing())
}

// paymentError passes provider failures through with their own message so
// the user sees what the gateway rejected. Everything else stays generic.
func paymentError(c echo.Context, err error) error {
	var gatewayErr *billing.GatewayError
	if errors.As(err, &gatewayErr) {
		return c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Error:   "payment_gateway_error",
			Message: gatewayErr.Error(),
		})
	}
	return apierrors.InternalError(c, err)
}

func (h *BillingHandler) recordConfirm(result *billing.ConfirmResult) {
	if h.metrics == nil || result.AlreadyProcessed {
		return
	}
	switch result.Purpose {
	case "subscription":
		h.metrics.RecordSubscriptionSold()
	case "tokens":
		h.metrics.RecordTokensCredited(result.TokensCredited)
	}
}
