package marketplace

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ExpressInterest offers a skill in exchange on someone else's request
func (h *Handler) ExpressInterest(c echo.Context) error {
	var req struct {
		SkillOffered string `json:"skill_offered"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request", "code": "validation"})
	}

	t, in, err := h.svc.ExpressInterest(c.Request().Context(), actor(c), c.Param("id"), req.SkillOffered)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"interest": in,
		"trade":    t.View(actor(c).UserID),
	})
}

// AcceptInterest picks a responder; every other pending interest is declined
func (h *Handler) AcceptInterest(c echo.Context) error {
	t, err := h.svc.Accept(c.Request().Context(), actor(c), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return view(c, http.StatusOK, t)
}

// DeclineInterest turns down one responder
func (h *Handler) DeclineInterest(c echo.Context) error {
	t, err := h.svc.Decline(c.Request().Context(), actor(c), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return view(c, http.StatusOK, t)
}

// OpenChannel returns the conversation for an accepted request, opening it if needed
func (h *Handler) OpenChannel(c echo.Context) error {
	id, err := h.svc.OpenChannel(c.Request().Context(), actor(c), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"channel_id": id})
}
