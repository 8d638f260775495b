package marketplace

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/sudo-init-do/skillswap/internal/filestore"
	"github.com/sudo-init-do/skillswap/internal/trade"
)

// StatusFor maps a trade error onto its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, trade.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, trade.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, trade.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, trade.ErrNotFound):
		return http.StatusNotFound
	case trade.IsInformational(err), errors.Is(err, trade.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, trade.ErrNotReady),
		errors.Is(err, trade.ErrNotSubmitted),
		errors.Is(err, trade.ErrNotApproved):
		return http.StatusUnprocessableEntity
	case errors.Is(err, trade.ErrNetwork):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// fail writes {"error", "code"} for err. Unknown errors are logged and masked.
func fail(c echo.Context, err error) error {
	status := StatusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("trade request failed")
		return c.JSON(status, echo.Map{"error": "internal error", "code": trade.Code(err)})
	}
	return c.JSON(status, echo.Map{"error": err.Error(), "code": trade.Code(err)})
}

// fileError maps upload failures onto validation errors.
func fileError(err error) error {
	switch {
	case errors.Is(err, filestore.ErrTooLarge), errors.Is(err, filestore.ErrEmpty):
		return fmt.Errorf("%w: %w", trade.ErrValidation, err)
	case errors.Is(err, filestore.ErrOwner):
		return fmt.Errorf("%w: %w", trade.ErrAuthentication, err)
	case errors.Is(err, filestore.ErrNotFound):
		return fmt.Errorf("%w: %w", trade.ErrNotFound, err)
	}
	return fmt.Errorf("%w: %w", trade.ErrNetwork, err)
}
