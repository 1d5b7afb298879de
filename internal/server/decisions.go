package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/aman-zulfiqar/solana-npi-router/internal/ledger"
)

const maxTotalsSince = 90 * 24 * time.Hour

// RecentDecisions returns the newest audited decisions.
// Accepts limit query parameter (default: 50, range: 1-200)
func (h *Handlers) RecentDecisions(c echo.Context) error {
	if h.Ledger == nil {
		return h.err(c, http.StatusServiceUnavailable, "ledger is not configured", nil)
	}
	limit := 50
	if v := strings.TrimSpace(c.QueryParam("limit")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "must be an integer"})
		}
		limit = n
	}
	if limit < 1 || limit > 200 {
		return h.err(c, http.StatusBadRequest, "invalid limit", map[string]any{"limit": "min 1 max 200"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Ledger.Recent(ctx, limit)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to get decisions", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func (h *Handlers) Decision(c echo.Context) error {
	if h.Ledger == nil {
		return h.err(c, http.StatusServiceUnavailable, "ledger is not configured", nil)
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" || len(id) > 64 {
		return h.err(c, http.StatusBadRequest, "invalid decision id", nil)
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	ev, err := h.Ledger.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return h.err(c, http.StatusNotFound, "decision not found", nil)
		}
		return h.err(c, http.StatusInternalServerError, "failed to get decision", nil)
	}
	return c.JSON(http.StatusOK, ev)
}

// NpiTotals sums the improvement split per output token over the trailing
// since duration (default 24h).
func (h *Handlers) NpiTotals(c echo.Context) error {
	if h.Ledger == nil {
		return h.err(c, http.StatusServiceUnavailable, "ledger is not configured", nil)
	}
	since := 24 * time.Hour
	if v := strings.TrimSpace(c.QueryParam("since")); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 || d > maxTotalsSince {
			return h.err(c, http.StatusBadRequest, "invalid since", map[string]any{"since": "positive duration up to 2160h"})
		}
		since = d
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Ledger.Totals(ctx, time.Now().Add(-since))
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to get totals", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"since": since.String(), "items": items})
}
