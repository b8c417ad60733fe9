package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// UserRole represents the roles recognised by the RBAC middleware.
type UserRole string

const (
	RoleAdmin UserRole = "ADMIN"
	RoleTA    UserRole = "TA"
)

// Valid reports whether the role is known.
func (r UserRole) Valid() bool {
	return r == RoleAdmin || r == RoleTA
}

// JWTClaims represents the access token payload issued by the identity service.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}
