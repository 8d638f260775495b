package wallet

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skillswap/internal/progression"
)

// AdminGetUserTransactions returns the XP awards of a specific user (admin view)
func (h *Handler) AdminGetUserTransactions(c echo.Context) error {
	userID := c.Param("id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user ID is required"})
	}

	ctx := c.Request().Context()
	awards, err := h.ledger.History(ctx, userID, limitParam(c, 200))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch xp history"})
	}
	total, err := h.ledger.Total(ctx, userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load xp"})
	}
	if awards == nil {
		awards = []progression.Award{}
	}
	return c.JSON(http.StatusOK, echo.Map{"user_id": userID, "balance": total, "awards": awards})
}
