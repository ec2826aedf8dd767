package session

import (
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/vharitonov/marketplace/internal/models"
	"github.com/vharitonov/marketplace/internal/service"
	"github.com/vharitonov/marketplace/internal/tokens"
)

const identityKey = "identity"

// Identity is the authenticated caller, resolved once per request from
// the access cookie (or a refresh rotation).
type Identity struct {
	UserID uint
	Role   models.Role
}

func CurrentUser(c echo.Context) (Identity, bool) {
	id, ok := c.Get(identityKey).(Identity)
	return id, ok
}

type Middleware struct {
	Auth      *service.AuthService
	JWTSecret []byte
}

// Require authenticates the request. A valid access cookie is enough; an
// expired one is exchanged for a new pair via the refresh cookie, with
// both cookies reset on the response.
func (m *Middleware) Require(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := m.authenticate(c); err != nil {
			return err
		}
		return next(c)
	}
}

// RequireVendor is Require plus a role gate.
func (m *Middleware) RequireVendor(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := m.authenticate(c); err != nil {
			return err
		}
		id, _ := CurrentUser(c)
		if id.Role != models.RoleVendor {
			return echo.NewHTTPError(http.StatusForbidden, "access denied")
		}
		return next(c)
	}
}

func (m *Middleware) authenticate(c echo.Context) error {
	if cookie, err := c.Cookie(AccessCookie); err == nil && cookie.Value != "" {
		claims, err := tokens.AccessClaimsFromToken(cookie.Value, m.JWTSecret)
		if err == nil {
			userID, err := claims.UserID()
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			c.Set(identityKey, Identity{UserID: userID, Role: claims.Role})
			return nil
		}
		if !errors.Is(err, jwt.ErrTokenExpired) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
	}

	refresh, err := c.Cookie(RefreshCookie)
	if err != nil || refresh.Value == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	result, err := m.Auth.Rotate(c.Request().Context(), refresh.Value)
	if err != nil {
		if errors.Is(err, service.ErrSessionInvalid) {
			return echo.NewHTTPError(http.StatusUnauthorized, "session expired")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}

	c.SetCookie(CreateCookie(AccessCookie, result.AccessToken, "/", result.AccessExp))
	c.SetCookie(CreateCookie(RefreshCookie, result.RefreshToken, "/", result.RefreshExp))
	c.Set(identityKey, Identity{UserID: result.User.ID, Role: result.User.Role})
	return nil
}
