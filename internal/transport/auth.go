package transport

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// ErrUnauthorized indicates invalid or missing credentials.
var ErrUnauthorized = errors.New("unauthorized")

const adminKey = "admin"

// AdminAuth enforces bearer token authentication against the configured
// admin key. An empty key disables the check.
func AdminAuth(apiKey string) echo.MiddlewareFunc {
	want := hashToken(apiKey)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if apiKey == "" {
				return next(c)
			}

			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			if token == "" || token == auth {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			got := hashToken(token)
			if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid bearer token")
			}

			c.Set(adminKey, true)
			return next(c)
		}
	}
}

// IsAdmin reports whether the request passed AdminAuth with a key.
func IsAdmin(c echo.Context) bool {
	ok, _ := c.Get(adminKey).(bool)
	return ok
}

func hashToken(token string) [sha256.Size]byte {
	return sha256.Sum256([]byte(token))
}
