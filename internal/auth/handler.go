// Package auth registers and signs in members.
package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"github.com/sudo-init-do/skillswap/internal/user"
)

// Handler serves the /auth routes.
type Handler struct {
	users           user.Store
	tokens          *Tokens
	validate        *validator.Validate
	bootstrapSecret string
}

func NewHandler(users user.Store, tokens *Tokens, bootstrapSecret string) *Handler {
	return &Handler{users: users, tokens: tokens, validate: validator.New(), bootstrapSecret: bootstrapSecret}
}

type SignupRequest struct {
	Name     string   `json:"name" validate:"required,max=100"`
	Email    string   `json:"email" validate:"required,email"`
	Password string   `json:"password" validate:"required,min=6,max=72"`
	Skills   []string `json:"skills" validate:"omitempty,max=20,dive,min=1,max=60"`
}

type TokenResponse struct {
	Token string     `json:"token"`
	User  *user.User `json:"user"`
}

// ===== Signup =====
func (h *Handler) Signup(c echo.Context) error {
	req := new(SignupRequest)
	if err := c.Bind(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request"})
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := h.validate.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "server error"})
	}

	u := &user.User{
		Name:     req.Name,
		Email:    req.Email,
		Password: string(hashed),
		Role:     user.RoleMember,
		Skills:   req.Skills,
	}
	err = h.users.Create(c.Request().Context(), u)
	if errors.Is(err, user.ErrEmailTaken) {
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
	}
	if err != nil {
		log.Error().Err(err).Msg("signup failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create account"})
	}

	signed, err := h.tokens.Issue(u.ID, u.Role)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "token generation failed"})
	}
	log.Info().Str("user_id", u.ID).Msg("member signed up")
	return c.JSON(http.StatusCreated, TokenResponse{Token: signed, User: u})
}
