package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
)

// NotFoundJSON returns a custom HTTP error handler that returns JSON responses
// This ensures all errors (including 404s) have consistent JSON format
func NotFoundJSON() echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		if errors.As(err, &he) {
			_ = c.JSON(he.Code, ErrorResponse{
				Error: http.StatusText(he.Code),
				Code:  he.Code,
			})
			return
		}

		_ = c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: "internal server error",
			Code:  http.StatusInternalServerError,
		})
	}
}

// classify maps the decision error taxonomy onto an HTTP status and kind.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, models.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, models.ErrPriceDivergence):
		return http.StatusConflict, "price_divergence"
	case errors.Is(err, models.ErrNoRouteAvailable):
		return http.StatusUnprocessableEntity, "no_route"
	case errors.Is(err, models.ErrInvalidPlan):
		return http.StatusUnprocessableEntity, "invalid_plan"
	case errors.Is(err, models.ErrStaleOracle):
		return http.StatusServiceUnavailable, "stale_oracle"
	case errors.Is(err, models.ErrOracleUnavailable):
		return http.StatusServiceUnavailable, "oracle_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
