package marketplace

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skillswap/internal/trade"
)

// SubmitDetails records the caller's side of the finalization gate
func (h *Handler) SubmitDetails(c echo.Context) error {
	var d trade.Details
	if err := c.Bind(&d); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request", "code": "validation"})
	}
	if d.ContextImage != nil {
		if actor(c).UserID == "" {
			return fail(c, trade.ErrAuthentication)
		}
		img, err := h.ownedRef(c, *d.ContextImage)
		if err != nil {
			return fail(c, err)
		}
		d.ContextImage = &img
	}
	t, err := h.svc.SubmitDetails(c.Request().Context(), actor(c), c.Param("id"), d)
	if err != nil {
		return fail(c, err)
	}
	return view(c, http.StatusOK, t)
}

// DetailStatus reports which participants have submitted details
func (h *Handler) DetailStatus(c echo.Context) error {
	g, err := h.svc.DetailStatus(c.Request().Context(), actor(c), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(http.StatusOK, g)
}

// Evaluate asks the scoring service to assess both sides
func (h *Handler) Evaluate(c echo.Context) error {
	t, err := h.svc.Evaluate(c.Request().Context(), actor(c), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return view(c, http.StatusOK, t)
}

// Confirm accepts the assessment and starts the trade
func (h *Handler) Confirm(c echo.Context) error {
	t, err := h.svc.Confirm(c.Request().Context(), actor(c), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return view(c, http.StatusOK, t)
}

// RejectEvaluation discards the assessment and reopens detail entry
func (h *Handler) RejectEvaluation(c echo.Context) error {
	t, err := h.svc.RejectEvaluation(c.Request().Context(), actor(c), c.Param("id"))
	if err != nil {
		return fail(c, err)
	}
	return view(c, http.StatusOK, t)
}
