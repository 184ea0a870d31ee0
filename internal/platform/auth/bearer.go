package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

var (
	// ErrMissingToken indicates no bearer token was presented.
	ErrMissingToken = errors.New("missing or malformed authorization header")

	// ErrInvalidToken indicates the presented token did not validate.
	ErrInvalidToken = errors.New("invalid token")
)

// bearerToken pulls the token out of an Authorization header, or "" when the
// header is absent or not a Bearer scheme.
func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// AppTokenMiddleware authenticates requests against the shared app token the
// mobile client carries. The comparison is constant-time.
func AppTokenMiddleware(appToken string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := bearerToken(c)
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, ErrMissingToken.Error())
			}
			if subtle.ConstantTimeCompare([]byte(token), []byte(appToken)) != 1 {
				return echo.NewHTTPError(http.StatusUnauthorized, ErrInvalidToken.Error())
			}
			return next(c)
		}
	}
}

// DevAuthMiddleware lets every request through. Development only.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(c)
		}
	}
}
