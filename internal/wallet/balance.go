// Package wallet exposes a member's XP: the running balance, its derived
// level and the awards behind it.
package wallet

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/sudo-init-do/skillswap/internal/progression"
	"github.com/sudo-init-do/skillswap/internal/user"
)

// Handler reads the XP ledger.
type Handler struct {
	ledger progression.Ledger
	table  progression.Table
}

func NewHandler(ledger progression.Ledger, table progression.Table) *Handler {
	return &Handler{ledger: ledger, table: table}
}

// Balance returns the authenticated user's XP total and derived level
func (h *Handler) Balance(c echo.Context) error {
	userID, ok := c.Get("user_id").(string)
	if !ok || userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	total, err := h.ledger.Total(c.Request().Context(), userID)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("xp total failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load xp"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"user_id":  userID,
		"balance":  total,
		"progress": user.ProgressOf(h.table, total),
	})
}
