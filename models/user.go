package models

import "time"

type UserRole string

const (
	RoleAdmin  UserRole = "admin"
	RolePlayer UserRole = "player"
)

type User struct {
	ID           int       `json:"id"`
	Nickname     string    `json:"nickname"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         UserRole  `json:"role"`
	AvatarKey    *string   `json:"-"`
	AvatarURL    *string   `json:"avatar_url,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}
