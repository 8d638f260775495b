package user

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/sudo-init-do/skillswap/internal/progression"
	"github.com/sudo-init-do/skillswap/internal/trade"
)

// RatingSource aggregates the ratings a user has received.
type RatingSource interface {
	RatingsReceived(ctx context.Context, userID string) (trade.RatingStats, error)
}

// Handler serves profiles. Levels are always derived from the ledger total.
type Handler struct {
	users    Store
	ledger   progression.Ledger
	table    progression.Table
	ratings  RatingSource
	validate *validator.Validate
}

func NewHandler(users Store, ledger progression.Ledger, table progression.Table, ratings RatingSource) *Handler {
	return &Handler{users: users, ledger: ledger, table: table, ratings: ratings, validate: validator.New()}
}

// Progress is the derived level view of a total.
type Progress struct {
	TotalXP    int64   `json:"total_xp"`
	Level      int     `json:"level"`
	XPInLevel  int64   `json:"xp_in_level"`
	LevelWidth int64   `json:"level_width"`
	Progress   float64 `json:"progress"`
	Maxed      bool    `json:"maxed"`
}

func ProgressOf(table progression.Table, total int64) Progress {
	l := table.Derive(total)
	return Progress{
		TotalXP:    total,
		Level:      l.Level,
		XPInLevel:  l.XPInLevel,
		LevelWidth: l.Width,
		Progress:   l.Progress(),
		Maxed:      l.Maxed,
	}
}

// GET /user/:id/profile
func (h *Handler) GetPublicProfile(c echo.Context) error {
	userID := c.Param("id")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing user id"})
	}
	ctx := c.Request().Context()

	u, err := h.users.ByID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	}
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("profile lookup failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to fetch user"})
	}

	total, err := h.ledger.Total(ctx, u.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load progress"})
	}

	profile := echo.Map{
		"id":         u.ID,
		"name":       u.Name,
		"bio":        u.Bio,
		"skills":     u.Skills,
		"avatar_url": u.AvatarURL,
		"role":       u.Role,
		"created_at": u.CreatedAt.Format(time.RFC3339),
		"progress":   ProgressOf(h.table, total),
	}
	if h.ratings != nil {
		if st, err := h.ratings.RatingsReceived(ctx, u.ID); err == nil {
			profile["ratings"] = st
		} else {
			log.Warn().Err(err).Str("user_id", u.ID).Msg("rating summary unavailable")
		}
	}
	return c.JSON(http.StatusOK, profile)
}
