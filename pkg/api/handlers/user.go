package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	apierrors "github.com/contentdesk/contentdesk/pkg/api/errors"
	custommw "github.com/contentdesk/contentdesk/pkg/api/middleware"
	"github.com/contentdesk/contentdesk/pkg/entitlement"
	"github.com/contentdesk/contentdesk/pkg/models"
	"github.com/contentdesk/contentdesk/pkg/phone"
	"github.com/contentdesk/contentdesk/pkg/store"
)

// UserHandler handles profile and usage endpoints
type UserHandler struct {
	users       store.UserStore
	entitlement *entitlement.Service
	validator   *validator.Validate
}

// NewUserHandler creates a new user handler
func NewUserHandler(users store.UserStore, ent *entitlement.Service) *UserHandler {
	return &UserHandler{
		users:       users,
		entitlement: ent,
		validator:   validator.New(),
	}
}

// GetProfile returns the caller's profile.
func (h *UserHandler) GetProfile(c echo.Context) error {
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

	return c.JSON(http.StatusOK, userResponse(u, ent))
}

// UpdateProfile updates profile fields. Phone numbers are normalized to
// E.164 before storage.
func (h *UserHandler) UpdateProfile(c echo.Context) error {
	sess, ok := custommw.CurrentSession(c)
	if !ok {
		return apierrors.UnauthorizedError(c)
	}

	var req models.UpdateProfileRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}
	if err := h.validator.Struct(req); err != nil {
		return apierrors.ValidationError(c, err)
	}

	fields := store.Fields{}
	if req.Name != nil {
		fields["Name"] = *req.Name
	}
	if req.Phone != nil {
		if *req.Phone == "" {
			fields["Phone"] = ""
		} else {
			normalized, err := phone.Normalize(*req.Phone, req.PhoneRegion)
			if err != nil {
				return c.JSON(http.StatusBadRequest, models.ErrorResponse{
					Error:   "invalid_phone",
					Message: "Phone number could not be parsed",
				})
			}
			fields["Phone"] = normalized
		}
	}
	if req.CompanyName != nil {
		fields["CompanyName"] = *req.CompanyName
	}
	if req.Website != nil {
		fields["Website"] = *req.Website
	}

	if len(fields) == 0 {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "empty_update",
			Message: "No fields to update",
		})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	if err := h.users.Update(ctx, sess.UserID, fields); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apierrors.NotFoundError(c, "User")
		}
		return apierrors.StoreError(c, err)
	}

	u, err := h.users.Get(ctx, sess.UserID)
	if err != nil {
		return apierrors.StoreError(c, err)
	}
	ent, err := h.entitlement.Resolve(ctx, sess.UserID)
	if err != nil {
		return apierrors.StoreError(c, err)
	}

	return c.JSON(http.StatusOK, userResponse(u, ent))
}

// GetUsage reports the caller's effective entitlement. The dashboard polls
// this endpoint, so it reads through the snapshot cache instead of hitting
// the record store on every poll.
func (h *UserHandler) GetUsage(c echo.Context) error {
	sess, ok := custommw.CurrentSession(c)
	if !ok {
		return apierrors.UnauthorizedError(c)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	ent, err := h.entitlement.Cached(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apierrors.NotFoundError(c, "User")
		}
		return apierrors.StoreError(c, err)
	}

	resp := models.UsageResponse{
		Tier:          string(ent.Tier),
		Tokens:        ent.Tokens,
		MonthlyTokens: entitlement.MonthlyAllotment(ent.Tier),
		NextReset:     ent.NextReset.Format(time.RFC3339),
	}
	if ent.SubscriptionEnd != nil {
		resp.SubscriptionEnd = ent.SubscriptionEnd.Format(time.RFC3339)
	}

	return c.JSON(http.StatusOK, resp)
}

func userResponse(u *store.User, ent *entitlement.Entitlement) models.UserResponse {
	resp := models.UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		Name:        u.Name,
		Phone:       u.Phone,
		CompanyName: u.CompanyName,
		Website:     u.Website,
		Tier:        string(ent.Tier),
		Tokens:      ent.Tokens,
		CreatedAt:   u.CreatedAt.Format(time.RFC3339),
	}
	if ent.SubscriptionEnd != nil {
		resp.SubscriptionEnd = ent.SubscriptionEnd.Format(time.RFC3339)
	}
	return resp
}
