package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID           int             `json:"id"`
	FullName     string          `json:"full_name"`
	Phone        string          `json:"phone"`
	Email        string          `json:"email"`
	PasswordHash string          `json:"-"`
	Role         Role            `json:"role"`
	Country      string          `json:"country"`
	Balance      decimal.Decimal `json:"balance"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

type Role string

const (
	RoleUser     Role = "user"
	RoleAgent    Role = "agent"
	RoleAdmin    Role = "admin"
	RoleSubAdmin Role = "sub_admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAgent, RoleAdmin, RoleSubAdmin:
		return true
	}
	return false
}

// IsStaff reports whether the role belongs to platform staff.
func (r Role) IsStaff() bool {
	return r == RoleAdmin || r == RoleSubAdmin
}

// Recipient is the directory view of a profile returned by recipient search.
type Recipient struct {
	ID       int    `json:"id"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Country  string `json:"country"`
}

func (u *User) AsRecipient() Recipient {
	return Recipient{ID: u.ID, FullName: u.FullName, Phone: u.Phone, Country: u.Country}
}

type RegisterRequest struct {
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Country  string `json:"country"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	User         *User  `json:"user"`
	Token        string `json:"token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type UpdateRoleRequest struct {
	Role Role `json:"role"`
}
