package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/aman-zulfiqar/solana-npi-router/internal/ai"
	"github.com/aman-zulfiqar/solana-npi-router/internal/ledger"
	"github.com/aman-zulfiqar/solana-npi-router/internal/models"
	"github.com/aman-zulfiqar/solana-npi-router/internal/npi"
	"github.com/aman-zulfiqar/solana-npi-router/internal/observability"
	"github.com/aman-zulfiqar/solana-npi-router/internal/router"
	"github.com/aman-zulfiqar/solana-npi-router/internal/switches"
	"github.com/aman-zulfiqar/solana-npi-router/internal/tokens"
)

// SwitchStore manages operator kill-switches.
type SwitchStore interface {
	List(ctx context.Context) ([]*switches.Switch, error)
	Get(ctx context.Context, venueID string) (*switches.Switch, error)
	Disable(ctx context.Context, venueID, reason string) (*switches.Switch, error)
	Enable(ctx context.Context, venueID string) error
}

// DecisionLedger reads the durable decision audit trail.
type DecisionLedger interface {
	Get(ctx context.Context, decisionID string) (*models.DecisionEvent, error)
	Recent(ctx context.Context, limit int) ([]models.DecisionEvent, error)
	Totals(ctx context.Context, since time.Time) ([]ledger.SplitTotal, error)
}

type Asker interface {
	Ask(ctx context.Context, question string) (*ai.AskResult, error)
}

// Handlers contains all dependencies for API endpoint handlers. Switches,
// Ledger, AI and Metrics are optional.
type Handlers struct {
	Router       *router.Router
	Tokens       *tokens.Registry
	Switches     SwitchStore
	Ledger       DecisionLedger
	AI           Asker
	AIBaseConfig ai.AgentConfig // base for per-request model overrides
	Metrics      *observability.Metrics
	DevMode      bool
	Logger       *logrus.Logger
}

// err returns a standardized JSON error response
// In dev mode, includes additional error details for debugging
func (h *Handlers) err(c echo.Context, code int, msg string, details any) error {
	resp := ErrorResponse{Error: msg, Code: code}
	if h.DevMode && details != nil {
		resp.Details = details
	}
	return c.JSON(code, resp)
}

// fail renders a decision error according to its class.
func (h *Handlers) fail(c echo.Context, err error) error {
	code, kind := classify(err)
	resp := ErrorResponse{Error: err.Error(), Code: code, Kind: kind}
	if code == http.StatusInternalServerError {
		h.Logger.WithError(err).WithField("path", c.Path()).Error("request failed")
		resp.Error = "internal server error"
	}
	if h.DevMode {
		details := map[string]any{"err": err.Error()}
		var nr *npi.NoRouteError
		if errors.As(err, &nr) {
			details["quoted"] = nr.Quoted
			details["excluded"] = nr.Excluded
		}
		resp.Details = details
	}
	return c.JSON(code, resp)
}

func (h *Handlers) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}

func (h *Handlers) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{OK: true, Venues: len(h.Router.Venues())})
}

// AIAsk answers a natural language question over the telemetry tables.
// A model override builds a one-off agent from AIBaseConfig.
func (h *Handlers) AIAsk(c echo.Context) error {
	if h.AI == nil {
		return h.err(c, http.StatusServiceUnavailable, "ai is not configured", nil)
	}

	var req AIAskRequest
	if err := c.Bind(&req); err != nil {
		return h.err(c, http.StatusBadRequest, "invalid json", nil)
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return h.err(c, http.StatusBadRequest, "question is required", map[string]any{"question": "required"})
	}

	ctx, cancel := h.withTimeout(c.Request().Context(), 45*time.Second)
	defer cancel()

	start := time.Now()

	agent := h.AI
	if m := strings.TrimSpace(req.Model); m != "" {
		cfg := h.AIBaseConfig
		cfg.Model = m
		tmp, err := ai.NewAgent(ctx, cfg)
		if err != nil {
			return h.err(c, http.StatusInternalServerError, "failed to create ai agent", map[string]any{"err": err.Error()})
		}
		defer func() {
			_ = tmp.Close()
		}()
		agent = tmp
	}

	res, err := agent.Ask(ctx, req.Question)
	if err != nil {
		return h.err(c, http.StatusInternalServerError, "ai ask failed", map[string]any{"err": err.Error()})
	}

	return c.JSON(http.StatusOK, AIAskResponse{
		SQL:    res.SQL,
		Answer: res.Answer,
		Rows:   res.Rows,
		TookMs: time.Since(start).Milliseconds(),
	})
}
