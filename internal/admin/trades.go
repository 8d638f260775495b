package admin

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skillswap/internal/marketplace"
	"github.com/sudo-init-do/skillswap/internal/trade"
)

// POST /admin/trades/:id/settle re-applies completion XP for a completed
// trade. Awards already credited are skipped.
func (h *Handler) SettleTrade(c echo.Context) error {
	progress, err := h.svc.Settle(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(marketplace.StatusFor(err), echo.Map{"error": err.Error(), "code": trade.Code(err)})
	}
	if progress == nil {
		progress = []trade.ParticipantProgress{}
	}
	return c.JSON(http.StatusOK, echo.Map{"progress": progress})
}
