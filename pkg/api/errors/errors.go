package errors

import (
	"log"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/contentdesk/contentdesk/pkg/entitlement"
	"github.com/contentdesk/contentdesk/pkg/models"
)

// ValidationError returns a generic validation error without exposing internal details
func ValidationError(c echo.Context, err error) error {
	log.Printf("[VALIDATION ERROR] Path: %s, Error: %v", c.Request().URL.Path, err)

	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "validation_error",
		Message: "Invalid request data. Please check your input and try again.",
	})
}

// StoreError returns a generic upstream-store error without exposing internal details
func StoreError(c echo.Context, err error) error {
	log.Printf("[STORE ERROR] Path: %s, Error: %v", c.Request().URL.Path, err)

	return c.JSON(http.StatusBadGateway, models.ErrorResponse{
		Error:   "store_error",
		Message: "The record store is unavailable. Please try again later.",
	})
}

// InternalError returns a generic internal server error
func InternalError(c echo.Context, err error) error {
	log.Printf("[INTERNAL ERROR] Path: %s, Error: %v", c.Request().URL.Path, err)

	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred. Please try again later.",
	})
}

// UnauthorizedError returns a generic unauthorized error
func UnauthorizedError(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Error:   "unauthorized",
		Message: "You are not authorized to access this resource.",
	})
}

// InvalidCredentialsError never distinguishes unknown email from wrong password
func InvalidCredentialsError(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Error:   "invalid_credentials",
		Message: "Invalid email or password",
	})
}

// NotFoundError returns a generic not found error
func NotFoundError(c echo.Context, resource string) error {
	return c.JSON(http.StatusNotFound, models.ErrorResponse{
		Error:   "not_found",
		Message: resource + " not found",
	})
}

// InsufficientTokensError reports a rejected debit with the balance gap
func InsufficientTokensError(c echo.Context, err *entitlement.InsufficientTokensError) error {
	return c.JSON(http.StatusPaymentRequired, map[string]interface{}{
		"error":     "insufficient_tokens",
		"message":   "Not enough tokens for this request.",
		"required":  err.Required,
		"available": err.Available,
	})
}
