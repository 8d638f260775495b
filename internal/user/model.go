package user

import "time"

const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Password  string    `json:"-"` // never return
	Role      string    `json:"role"`
	Bio       string    `json:"bio,omitempty"`
	Skills    []string  `json:"skills"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

// ProfileUpdate carries optional profile fields; nil leaves a field unchanged.
type ProfileUpdate struct {
	Name      *string  `json:"name" validate:"omitempty,min=1,max=100"`
	Bio       *string  `json:"bio" validate:"omitempty,max=1000"`
	AvatarURL *string  `json:"avatar_url" validate:"omitempty,url"`
	Skills    []string `json:"skills" validate:"omitempty,max=20,dive,min=1,max=60"`
}
