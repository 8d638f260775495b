package wallet

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skillswap/internal/progression"
)

func limitParam(c echo.Context, def int) int {
	if l := c.QueryParam("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 200 {
			return v
		}
	}
	return def
}

// Transactions returns the XP awards credited to the authenticated user
func (h *Handler) Transactions(c echo.Context) error {
	uid, ok := c.Get("user_id").(string)
	if !ok || uid == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{
			"error": "unauthorized or invalid user",
		})
	}

	awards, err := h.ledger.History(c.Request().Context(), uid, limitParam(c, 50))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not fetch xp history"})
	}
	if awards == nil {
		awards = []progression.Award{}
	}
	return c.JSON(http.StatusOK, echo.Map{"awards": awards})
}

// Leaderboard ranks members by total XP
func (h *Handler) Leaderboard(c echo.Context) error {
	ranker, ok := h.ledger.(progression.Ranker)
	if !ok {
		return c.JSON(http.StatusNotImplemented, echo.Map{"error": "leaderboard unavailable"})
	}
	standings, err := ranker.Leaderboard(c.Request().Context(), limitParam(c, 20))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not load leaderboard"})
	}

	type entry struct {
		Rank   int    `json:"rank"`
		UserID string `json:"user_id"`
		Total  int64  `json:"total_xp"`
		Level  int    `json:"level"`
	}
	out := make([]entry, 0, len(standings))
	for i, s := range standings {
		out = append(out, entry{Rank: i + 1, UserID: s.UserID, Total: s.Total, Level: h.table.Derive(s.Total).Level})
	}
	return c.JSON(http.StatusOK, echo.Map{"leaderboard": out})
}
