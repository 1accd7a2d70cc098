package user

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"

	MinUsernameLen = 2
	MinPasswordLen = 6
)

var (
	ErrNotFound      = errors.New("user not found")
	ErrUsernameTaken = errors.New("username already in use")
	ErrEmailTaken    = errors.New("email already in use")
)

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never expose hash in JSON
	Role         string    `json:"role"`
	Places       []string  `json:"places"`
	Experiences  []string  `json:"experiences"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Summary is the owner view embedded in place and experience responses.
type Summary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (u User) Summary() Summary {
	return Summary{ID: u.ID, Username: u.Username, Role: u.Role}
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=2,max=64"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=128"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type SetRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=user admin"`
}

func ValidRole(role string) bool {
	return role == RoleUser || role == RoleAdmin
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func NormalizeUsername(username string) string {
	return strings.TrimSpace(username)
}

// New builds a fresh account. Registration always yields RoleUser; admins are
// promoted afterwards.
func New(username, email, passwordHash string) User {
	now := time.Now().UTC()

	return User{
		ID:           uuid.NewString(),
		Username:     NormalizeUsername(username),
		Email:        NormalizeEmail(email),
		PasswordHash: passwordHash,
		Role:         RoleUser,
		Places:       []string{},
		Experiences:  []string{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}
