package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/pixvault/internal/service"
)

// Sweeper runs one expiry sweep.
type Sweeper interface {
	Sweep(ctx context.Context) (service.SweepResult, error)
}

// SweepHandler exposes the expiry sweep to an external scheduler.
type SweepHandler struct {
	Sweeper Sweeper
	Log     zerolog.Logger
}

func NewSweepHandler(s Sweeper, log zerolog.Logger) *SweepHandler {
	return &SweepHandler{Sweeper: s, Log: log}
}

// Run sweeps to completion under the request context. Per-entry failures are
// reported in the counts; only a failure to enumerate the index is a 500.
func (h *SweepHandler) Run(c echo.Context) error {
	res, err := h.Sweeper.Sweep(c.Request().Context())
	if err != nil {
		h.Log.Error().Err(err).Msg("sweep failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal", "message": "sweep failed"})
	}
	h.Log.Info().
		Int("scanned", res.Scanned).
		Int("purged", res.Purged).
		Int("orphans", res.Orphans).
		Int("failed", res.Failed).
		Msg("sweep done")
	return c.JSON(http.StatusOK, res)
}
