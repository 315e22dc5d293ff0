package user

import (
	"strings"
	"time"
)

type Role string

const (
	RoleAdmin               Role = "admin"
	RoleManager             Role = "manager"
	RoleProjectManager      Role = "project_manager"
	RoleBusinessDevelopment Role = "business_development"
	RoleUser                Role = "user"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleManager, RoleProjectManager, RoleBusinessDevelopment, RoleUser:
		return true
	default:
		return false
	}
}

// ParseRole normalises user input into a Role.
func ParseRole(raw string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	return r, r.IsValid()
}

// User is the identity record. OTP and reset fields are set only between
// issuance and redemption.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never expose hash in JSON
	Role         Role      `json:"role"`
	IsVerified   bool      `json:"isVerified"`
	IsFirstLogin bool      `json:"isFirstLogin"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`

	OTPCode             *string    `json:"-"`
	OTPExpiresAt        *time.Time `json:"-"`
	ResetToken          *string    `json:"-"`
	ResetTokenExpiresAt *time.Time `json:"-"`
}

// NewUser is the input for creating an identity record.
type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	IsVerified   bool
	IsFirstLogin bool
	OTPCode      *string
	OTPExpiresAt *time.Time
}

// Profile is the public view of an identity.
type Profile struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	IsVerified   bool      `json:"isVerified"`
	IsFirstLogin bool      `json:"isFirstLogin"`
	CreatedAt    time.Time `json:"createdAt"`
}

func (u User) Profile() Profile {
	return Profile{
		ID:           u.ID,
		Username:     u.Username,
		Email:        u.Email,
		Role:         u.Role,
		IsVerified:   u.IsVerified,
		IsFirstLogin: u.IsFirstLogin,
		CreatedAt:    u.CreatedAt,
	}
}

// NormalizeEmail lowercases and trims an email so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ListFilter selects a page of identities ordered by (CreatedAt, ID).
type ListFilter struct {
	// OnlyID restricts the listing to a single identity when set.
	OnlyID         string
	Limit          int
	AfterCreatedAt time.Time
	AfterID        string
}
