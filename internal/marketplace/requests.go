// Package marketplace serves the trade lifecycle over HTTP.
package marketplace

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skillswap/internal/filestore"
	"github.com/sudo-init-do/skillswap/internal/trade"
)

// Handler binds the trade service and the file store to echo routes.
type Handler struct {
	svc   *trade.Service
	files filestore.Store
}

func NewHandler(svc *trade.Service, files filestore.Store) *Handler {
	return &Handler{svc: svc, files: files}
}

// Register mounts the authenticated trade routes on g.
func (h *Handler) Register(g *echo.Group) {
	g.GET("/marketplace/requests", h.ListOpen)
	g.POST("/marketplace/requests", h.CreateRequest)
	g.GET("/marketplace/requests/me", h.ListMine)
	g.GET("/marketplace/requests/:id", h.GetRequest)
	g.POST("/marketplace/requests/:id/cancel", h.CancelRequest)
	g.DELETE("/marketplace/requests/:id", h.DeleteRequest)

	g.POST("/marketplace/requests/:id/interests", h.ExpressInterest)
	g.POST("/marketplace/interests/:id/accept", h.AcceptInterest)
	g.POST("/marketplace/interests/:id/decline", h.DeclineInterest)
	g.POST("/marketplace/requests/:id/channel", h.OpenChannel)

	g.POST("/marketplace/requests/:id/details", h.SubmitDetails)
	g.GET("/marketplace/requests/:id/details/status", h.DetailStatus)
	g.POST("/marketplace/requests/:id/evaluate", h.Evaluate)
	g.POST("/marketplace/requests/:id/confirm", h.Confirm)
	g.POST("/marketplace/requests/:id/reject", h.RejectEvaluation)

	g.POST("/marketplace/requests/:id/proof", h.SubmitProof)
	g.POST("/marketplace/requests/:id/proof/approve", h.ApproveProof)
	g.POST("/marketplace/requests/:id/proof/reject", h.RejectProof)
	g.POST("/marketplace/requests/:id/rating", h.SubmitRating)

	g.POST("/files", h.UploadFile)
	g.GET("/files/:ref", h.DownloadFile)
}

func actor(c echo.Context) trade.Actor {
	id, _ := c.Get("user_id").(string)
	return trade.Actor{UserID: id}
}

// view renders t from the caller's side.
func view(c echo.Context, status int, t *trade.Trade) error {
	return c.JSON(status, t.View(actor(c).UserID))
}

// parseDeadline accepts a calendar date or an RFC3339 timestamp. A timestamp
// contributes the calendar date in its own offset.
func parseDeadline(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.Parse(time.DateOnly, s); err == nil {
		return d, nil
	}
	d, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: deadline must be YYYY-MM-DD", trade.ErrValidation)
	}
	y, m, day := d.Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC), nil
}

// CreateRequest posts a new skill request
func (h *Handler) CreateRequest(c echo.Context) error {
	var req struct {
		SkillNeeded string `json:"skill_needed"`
		Description string `json:"description"`
		Deadline    string `json:"deadline"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request", "code": "validation"})
	}
	deadline, err := parseDeadline(req.Deadline)
	if err != nil {
		return fail(c, err)
	}

	t, err := h.svc.Create(c.Request().Context(), actor(c), trade.CreateInput{
		SkillNeeded: req.SkillNeeded,
		Description: req.Description,
		Deadline:    deadline,
	})
	if err != nil {
		return fail(c, err)
	}
	return view(c, http.StatusCreated, t)
}

// ListOpen browses posted requests, optionally filtered by ?skill
func (h *Handler) ListOpen(c echo.Context) error {
	f := trade.ListFilter{Skill: c.QueryParam("skill")}
	if l := c.QueryParam("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil {
			f.Limit = v
		}
	}
	if o := c.QueryParam("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil {
			f.Offset = v
		}
	}

	trades, err := h.svc.ListOpen(c.Request().Context(), f)
	if err != nil {
		return fail(c, err)
	}
	me := actor(c).UserID
	items := make([]trade.TradeView, 0, len(trades))
	for _, t := range trades {
		items = append(items, t.View(me))
	}
	return c.JSON(http.StatusOK, echo.Map{"requests": items, "limit": f.Limit, "offset": f.Offset})
}

// ListMine returns the caller's active trades, or archived ones with ?archived=true
func (h *Handler) ListMine(c echo.Context) error {
	archived := c.QueryParam("archived") == "true"
	trades, err := h.svc.ListMine(c.Request().Context(), actor(c), archived)
	if err != nil {
		return fail(c, err)
	}
	me := actor(c).UserID
	items := make([]trade.TradeView, 0, len(trades))
	for _, t := range trades {
		items = append(items, t.View(me))
	}
	return c.JSON(http.StatusOK, echo.Map{"requests": items, "archived": archived})
}

// GetRequest returns one trade as the caller sees it
func (h *Handler) GetRequest(c echo.Context) error {
	t, err := h.svc.Get(c.Request().Context(), actor(c), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return view(c, http.StatusOK, t)
}

// CancelRequest withdraws a posted or accepted request
func (h *Handler) CancelRequest(c echo.Context) error {
	t, err := h.svc.Cancel(c.Request().Context(), actor(c), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return view(c, http.StatusOK, t)
}

// DeleteRequest removes a request nobody has been accepted on
func (h *Handler) DeleteRequest(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), actor(c), c.Param("id")); err != nil {
		return fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
