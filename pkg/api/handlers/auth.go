package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/contentdesk/contentdesk/config"
	apierrors "github.com/contentdesk/contentdesk/pkg/api/errors"
	custommw "github.com/contentdesk/contentdesk/pkg/api/middleware"
	"github.com/contentdesk/contentdesk/pkg/auth"
	"github.com/contentdesk/contentdesk/pkg/email"
	"github.com/contentdesk/contentdesk/pkg/entitlement"
	"github.com/contentdesk/contentdesk/pkg/metrics"
	"github.com/contentdesk/contentdesk/pkg/models"
	"github.com/contentdesk/contentdesk/pkg/store"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	users        store.UserStore
	entitlement  *entitlement.Service
	config       *config.Config
	blacklist    *auth.TokenBlacklist
	emailService *email.Service
	metrics      *metrics.Metrics
	validator    *validator.Validate
}

// NewAuthHandler creates a new auth handler. emailService and m may be nil.
func NewAuthHandler(users store.UserStore, ent *entitlement.Service, cfg *config.Config, blacklist *auth.TokenBlacklist, emailService *email.Service, m *metrics.Metrics) *AuthHandler {
	return &AuthHandler{
		users:        users,
		entitlement:  ent,
		config:       cfg,
		blacklist:    blacklist,
		emailService: emailService,
		metrics:      m,
		validator:    validator.New(),
	}
}

// Register creates a new account with the starter token grant.
func (h *AuthHandler) Register(c echo.Context) error {
	var req models.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}

	if err := h.validator.Struct(req); err != nil {
		return apierrors.ValidationError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	// Duplicate registration is the one auth failure we name explicitly
	_, err := h.users.FindByEmail(ctx, req.Email)
	if err == nil {
		return c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "user_exists",
			Message: "User with this email already exists",
		})
	}
	if !errors.Is(err, store.ErrNotFound) {
		return apierrors.StoreError(c, err)
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		return apierrors.InternalError(c, err)
	}

	newUser := &store.User{
		Email:        req.Email,
		PasswordHash: hashedPassword,
		Name:         req.Name,
		Tier:         store.TierFree,
		Tokens:       entitlement.StarterTokens,
		LastReset:    time.Now(),
	}
	id, err := h.users.Create(ctx, newUser)
	if err != nil {
		return apierrors.StoreError(c, err)
	}

	if h.metrics != nil {
		h.metrics.RecordUserRegistered()
	}
	if h.emailService != nil {
		// Registration does not wait on the mail provider, but a failed
		// send must still show up in the logs
		go func(toEmail, toName string) {
			if err := h.emailService.SendWelcomeEmail(toEmail, toName); err != nil {
				log.Printf("[EMAIL ERROR] Welcome email to %s failed: %v", toEmail, err)
			}
		}(req.Email, req.Name)
	}

	token, err := auth.GenerateJWT(id, req.Email, string(store.TierFree), h.config.JWTSecret, h.config.JWTExpirationHours)
	if err != nil {
		return apierrors.InternalError(c, err)
	}

	return c.JSON(http.StatusCreated, models.AuthResponse{
		Token: token,
		User: &models.UserInfo{
			ID:     id,
			Email:  req.Email,
			Name:   req.Name,
			Tier:   string(store.TierFree),
			Tokens: entitlement.StarterTokens,
		},
	})
}

// Login authenticates with email and password.
func (h *AuthHandler) Login(c echo.Context) error {
	var req models.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}

	if err := h.validator.Struct(req); err != nil {
		return apierrors.ValidationError(c, err)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	u, err := h.users.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.recordLogin(false)
			return apierrors.InvalidCredentialsError(c)
		}
		return apierrors.StoreError(c, err)
	}

	if !auth.CheckPassword(u.PasswordHash, req.Password) {
		h.recordLogin(false)
		return apierrors.InvalidCredentialsError(c)
	}
	h.recordLogin(true)

	// Effective state, with expiry and monthly reset applied
	ent, err := h.entitlement.Resolve(ctx, u.ID)
	if err != nil {
		return apierrors.StoreError(c, err)
	}

	token, err := auth.GenerateJWT(u.ID, u.Email, string(ent.Tier), h.config.JWTSecret, h.config.JWTExpirationHours)
	if err != nil {
		return apierrors.InternalError(c, err)
	}

	return c.JSON(http.StatusOK, models.AuthResponse{
		Token: token,
		User:  userInfo(u, ent),
	})
}

// Me returns the caller's current account state.
func (h *AuthHandler) Me(c echo.Context) error {
	sess, ok := custommw.CurrentSession(c)
	if !ok {
		return apierrors.UnauthorizedError(c)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	ent, err := h.entitlement.Resolve(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apierrors.NotFoundError(c, "User")
		}
		return apierrors.StoreError(c, err)
	}
	u, err := h.users.Get(ctx, sess.UserID)
	if err != nil {
		return apierrors.StoreError(c, err)
	}

	return c.JSON(http.StatusOK, userInfo(u, ent))
}

// Logout revokes the presented token for its remaining lifetime.
func (h *AuthHandler) Logout(c echo.Context) error {
	tokenString, ok := c.Get("token").(string)
	if !ok || tokenString == "" {
		return apierrors.UnauthorizedError(c)
	}

	claims, err := auth.ValidateJWT(tokenString, h.config.JWTSecret)
	if err != nil {
		return apierrors.UnauthorizedError(c)
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining > 0 && h.blacklist != nil {
		if err := h.blacklist.Add(c.Request().Context(), tokenString, remaining); err != nil {
			return apierrors.InternalError(c, err)
		}
	}

	return c.JSON(http.StatusOK, models.SuccessResponse{
		Success: true,
		Message: "Logged out",
	})
}

func (h *AuthHandler) recordLogin(success bool) {
	if h.metrics != nil {
		h.metrics.RecordLoginAttempt(success)
	}
}

func userInfo(u *store.User, ent *entitlement.Entitlement) *models.UserInfo {
	info := &models.UserInfo{
		ID:     u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Tier:   string(ent.Tier),
		Tokens: ent.Tokens,
	}
	if ent.SubscriptionEnd != nil {
		info.SubscriptionEnd = ent.SubscriptionEnd.Format(time.RFC3339)
	}
	return info
}
