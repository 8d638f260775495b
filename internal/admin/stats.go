// Package admin holds the operator endpoints mounted under /admin.
package admin

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/sudo-init-do/skillswap/internal/progression"
	"github.com/sudo-init-do/skillswap/internal/trade"
	"github.com/sudo-init-do/skillswap/internal/user"
)

// StatusCounter reports how many trades sit in each lifecycle state.
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[trade.Status]int, error)
}

type Handler struct {
	trades StatusCounter
	svc    *trade.Service
	users  user.Store
	ledger progression.Ledger
	table  progression.Table
}

func NewHandler(trades StatusCounter, svc *trade.Service, users user.Store, ledger progression.Ledger) *Handler {
	return &Handler{trades: trades, svc: svc, users: users, ledger: ledger, table: svc.LevelTable()}
}

// GET /admin/stats
func (h *Handler) Stats(c echo.Context) error {
	counts, err := h.trades.CountByStatus(c.Request().Context())
	if err != nil {
		log.Error().Err(err).Msg("trade stats failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load stats"})
	}

	byStatus := echo.Map{}
	total := 0
	for _, st := range []trade.Status{
		trade.StatusPosted, trade.StatusAccepted, trade.StatusFinalizing,
		trade.StatusActive, trade.StatusCompleted, trade.StatusCancelled,
	} {
		byStatus[string(st)] = counts[st]
		total += counts[st]
	}
	return c.JSON(http.StatusOK, echo.Map{
		"trades":    total,
		"by_status": byStatus,
	})
}
