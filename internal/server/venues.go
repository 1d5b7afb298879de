package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
	"github.com/aman-zulfiqar/solana-npi-router/internal/switches"
)

const maxReliabilityWindow = 24 * time.Hour

func (h *Handlers) knownVenue(id string) bool {
	for _, v := range h.Router.Venues() {
		if v.ID == id {
			return true
		}
	}
	return false
}

// window reads the optional window query parameter, defaulting to the
// router's reliability window.
func (h *Handlers) window(c echo.Context) (time.Duration, error) {
	v := strings.TrimSpace(c.QueryParam("window"))
	if v == "" {
		return h.Router.ReliabilityWindow(), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 || d > maxReliabilityWindow {
		return 0, errors.New("window must be a positive duration up to 24h")
	}
	return d, nil
}

// Venues lists configured venues with their switch state and grade.
func (h *Handlers) Venues(c echo.Context) error {
	disabled := map[string]bool{}
	if h.Switches != nil {
		ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
		defer cancel()
		items, err := h.Switches.List(ctx)
		if err != nil {
			h.Logger.WithError(err).Warn("failed to list switches")
		}
		for _, s := range items {
			disabled[s.VenueID] = s.Disabled
		}
	}

	tracker := h.Router.Tracker()
	window := h.Router.ReliabilityWindow()
	venues := h.Router.Venues()
	out := make([]VenueStatus, 0, len(venues))
	for _, v := range venues {
		s := tracker.Summary(v.ID, window)
		out = append(out, VenueStatus{
			VenueInfo:  v,
			Disabled:   disabled[v.ID],
			Grade:      s.OverallScore,
			SampleSize: s.SampleSize,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"items": out})
}

// Reliability returns every venue's scorecard over the window.
func (h *Handlers) Reliability(c echo.Context) error {
	window, err := h.window(c)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid window", map[string]any{"window": err.Error()})
	}

	tracker := h.Router.Tracker()
	venues := h.Router.Venues()
	resp := ReliabilityResponse{Window: window.String(), Items: make([]models.ReliabilitySummary, 0, len(venues))}
	for _, v := range venues {
		resp.Items = append(resp.Items, tracker.Summary(v.ID, window))
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handlers) VenueReliability(c echo.Context) error {
	id := c.Param("id")
	if !h.knownVenue(id) {
		return h.err(c, http.StatusNotFound, "venue not found", nil)
	}
	window, err := h.window(c)
	if err != nil {
		return h.err(c, http.StatusBadRequest, "invalid window", map[string]any{"window": err.Error()})
	}
	return c.JSON(http.StatusOK, h.Router.Tracker().Summary(id, window))
}

// SwitchesList returns every venue that has a switch set.
func (h *Handlers) SwitchesList(c echo.Context) error {
	if h.Switches == nil {
		return h.err(c, http.StatusServiceUnavailable, "switches are not configured", nil)
	}
	ctx, cancel := h.withTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	items, err := h.Switches.List(ctx)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to list switches", nil)
	}
	return c.JSON(http.StatusOK, map[string]any{"items": items})
}

func (h *Handlers) SwitchGet(c echo.Context) error {
	id, ok, resp := h.switchTarget(c)
	if !ok {
		return resp
	}
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out, err := h.Switches.Get(ctx, id)
	if err != nil {
		if errors.Is(err, switches.ErrNotFound) {
			return h.err(c, http.StatusNotFound, "switch not found", nil)
		}
		return h.err(c, http.StatusInternalServerError, "failed to get switch", nil)
	}
	return c.JSON(http.StatusOK, out)
}

// SwitchDisable takes a venue out of routing until it is re-enabled.
func (h *Handlers) SwitchDisable(c echo.Context) error {
	id, ok, resp := h.switchTarget(c)
	if !ok {
		return resp
	}
	var req SwitchRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return h.err(c, http.StatusBadRequest, "invalid json", nil)
		}
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	out, err := h.Switches.Disable(ctx, id, strings.TrimSpace(req.Reason))
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to disable venue", nil)
	}
	h.Logger.WithField("venue", id).WithField("reason", out.Reason).Warn("venue disabled by operator")
	return c.JSON(http.StatusOK, out)
}

// SwitchEnable removes the switch. It returns 204 even if none was set.
func (h *Handlers) SwitchEnable(c echo.Context) error {
	id, ok, resp := h.switchTarget(c)
	if !ok {
		return resp
	}
	ctx, cancel := h.withTimeout(c.Request().Context(), 3*time.Second)
	defer cancel()

	if err := h.Switches.Enable(ctx, id); err != nil {
		return h.err(c, http.StatusInternalServerError, "failed to enable venue", nil)
	}
	h.Logger.WithField("venue", id).Info("venue enabled by operator")
	return c.NoContent(http.StatusNoContent)
}

// switchTarget validates the :venue parameter. When ok is false the
// response has already been written and resp is its result.
func (h *Handlers) switchTarget(c echo.Context) (id string, ok bool, resp error) {
	if h.Switches == nil {
		return "", false, h.err(c, http.StatusServiceUnavailable, "switches are not configured", nil)
	}
	id = c.Param("venue")
	if err := switches.ValidateVenueID(id); err != nil {
		return "", false, h.err(c, http.StatusBadRequest, "invalid venue", map[string]any{"venue": "invalid format"})
	}
	if !h.knownVenue(id) {
		return "", false, h.err(c, http.StatusNotFound, "venue not found", nil)
	}
	return id, true, nil
}
