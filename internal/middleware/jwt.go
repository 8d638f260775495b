package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/sudo-init-do/skillswap/internal/utils"
)

// JWTMiddleware verifies the bearer token and stores user_id and role on
// the context for handlers. Browsers cannot set headers on a websocket
// handshake, so an access_token query parameter is accepted when the
// Authorization header is absent.
func JWTMiddleware(secret string) echo.MiddlewareFunc {
	key := []byte(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				if tok := c.QueryParam("access_token"); tok != "" {
					header = "Bearer " + tok
				}
			}
			claims, err := utils.ParseBearer(header, key)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error(), "code": "unauthenticated"})
			}
			c.Set("user_id", claims.UserID)
			c.Set("role", claims.Role)
			return next(c)
		}
	}
}
