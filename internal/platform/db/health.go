package db

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// PingFunc checks that the durable store is reachable. Both the pgx pool and
// database/sql expose a compatible ping.
type PingFunc func(ctx context.Context) error

// HealthHandler returns the store health endpoint. The record service keeps
// working from memory when the store is down, so an unhealthy store is
// reported but is not fatal.
func HealthHandler(ping PingFunc, driver string) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		if err := ping(ctx); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"driver": driver,
				"error":  err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"driver": driver,
		})
	}
}
