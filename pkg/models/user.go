package models

// UpdateProfileRequest represents a profile update request
type UpdateProfileRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=2"`
	Phone       *string `json:"phone,omitempty"`
	PhoneRegion string  `json:"phone_region,omitempty"`
	CompanyName *string `json:"company_name,omitempty"`
	Website     *string `json:"website,omitempty" validate:"omitempty,url"`
}

// UserResponse represents a user profile in responses
type UserResponse struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	Name            string `json:"name"`
	Phone           string `json:"phone,omitempty"`
	CompanyName     string `json:"company_name,omitempty"`
	Website         string `json:"website,omitempty"`
	Tier            string `json:"tier"`
	Tokens          int    `json:"tokens"`
	SubscriptionEnd string `json:"subscription_end,omitempty"`
	CreatedAt       string `json:"created_at"`
}

// UsageResponse reports the effective entitlement state
type UsageResponse struct {
	Tier            string `json:"tier"`
	Tokens          int    `json:"tokens"`
	MonthlyTokens   int    `json:"monthly_tokens"`
	NextReset       string `json:"next_reset"`
	SubscriptionEnd string `json:"subscription_end,omitempty"`
}
