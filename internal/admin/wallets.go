package admin

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/sudo-init-do/skillswap/internal/progression"
	"github.com/sudo-init-do/skillswap/internal/user"
)

type GrantRequest struct {
	UserID string `json:"user_id"`
	Amount int64  `json:"amount"`
	Reason string `json:"reason"`
}

// POST /admin/xp/grant credits XP outside of a trade.
func (h *Handler) GrantXP(c echo.Context) error {
	var req GrantRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.UserID == "" || req.Amount <= 0 || req.Reason == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id, positive amount and reason are required"})
	}

	ctx := c.Request().Context()
	if _, err := h.users.ByID(ctx, req.UserID); errors.Is(err, user.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	} else if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load user"})
	}

	before, after, _, err := h.ledger.Apply(ctx, progression.Award{
		UserID: req.UserID,
		Amount: req.Amount,
		Reason: "admin grant: " + req.Reason,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to grant xp"})
	}

	admin, _ := c.Get("user_id").(string)
	log.Info().Str("admin_id", admin).Str("user_id", req.UserID).Int64("amount", req.Amount).Msg("xp granted")
	return c.JSON(http.StatusOK, h.table.Change(before, after))
}
