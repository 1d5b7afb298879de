package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RegisterRoutes configures all API routes, middleware, and error handlers
func RegisterRoutes(e *echo.Echo, h *Handlers, cfg ServerConfig) {
	if h.Logger == nil {
		h.Logger = logrus.New()
	}
	e.HTTPErrorHandler = NotFoundJSON()

	e.Use(SetJSONContentType)
	e.Use(SetNoCacheHeaders)

	if h.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(h.Metrics.Handler()))
	}

	v1 := e.Group("/v1")
	if cfg.APIKey != "" {
		v1.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key",
			Validator: func(key string, c echo.Context) (bool, error) {
				return key == cfg.APIKey, nil
			},
		}))
	}

	v1.GET("/health", h.Health)
	v1.GET("/quote", h.Quote)

	v1.GET("/venues", h.Venues)
	v1.GET("/venues/reliability", h.Reliability)
	v1.GET("/venues/:id/reliability", h.VenueReliability)

	sw := v1.Group("/switches")
	sw.GET("", h.SwitchesList)
	sw.GET("/:venue", h.SwitchGet)
	sw.PUT("/:venue", h.SwitchDisable)
	sw.DELETE("/:venue", h.SwitchEnable)

	v1.GET("/decisions/recent", h.RecentDecisions)
	v1.GET("/decisions/:id", h.Decision)
	v1.GET("/npi/totals", h.NpiTotals)

	aigroup := v1.Group("/ai")
	aigroup.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(0.2), // 1 request every 5 seconds
		Burst:     2,
		ExpiresIn: 2 * time.Minute,
	})))
	aigroup.POST("/ask", h.AIAsk)

	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}
