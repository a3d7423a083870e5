package models

// CheckoutRequest asks for a hosted checkout session
type CheckoutRequest struct {
	Bundle string `json:"bundle,omitempty"`
}

// CheckoutResponse carries the hosted checkout redirect URL
type CheckoutResponse struct {
	URL string `json:"url"`
}

// ConfirmCheckoutRequest reconciles a finished checkout by session ID
type ConfirmCheckoutRequest struct {
	SessionID string `json:"session_id" validate:"required"`
}
