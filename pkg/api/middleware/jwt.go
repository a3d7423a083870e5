package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/contentdesk/contentdesk/pkg/auth"
	"github.com/contentdesk/contentdesk/pkg/models"
	"github.com/contentdesk/contentdesk/pkg/session"
	"github.com/contentdesk/contentdesk/pkg/store"
)

// SessionKey is the echo context key the authenticated session is stored
// under.
const SessionKey = "session"

// JWTMiddleware validates the Bearer token and places a session.Session in
// the echo context for downstream handlers.
func JWTMiddleware(secret string, blacklist *auth.TokenBlacklist) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(header, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "unauthorized",
					Message: "Missing or malformed authorization header",
				})
			}
			tokenString := strings.TrimPrefix(header, "Bearer ")

			var claims *auth.Claims
			var err error
			if blacklist != nil {
				claims, err = auth.ValidateJWTWithBlacklist(c.Request().Context(), tokenString, secret, blacklist)
			} else {
				claims, err = auth.ValidateJWT(tokenString, secret)
			}
			if err != nil {
				return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
					Error:   "unauthorized",
					Message: "Invalid or expired token",
				})
			}

			c.Set(SessionKey, session.Session{
				UserID: claims.UserID,
				Email:  claims.Email,
				Tier:   store.Tier(claims.Tier),
			})
			// Raw token kept for logout blacklisting
			c.Set("token", tokenString)

			return next(c)
		}
	}
}

// CurrentSession extracts the authenticated session set by JWTMiddleware.
func CurrentSession(c echo.Context) (session.Session, bool) {
	sess, ok := c.Get(SessionKey).(session.Session)
	return sess, ok
}
