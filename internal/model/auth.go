package model

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// RegisterRequest creates staff accounts. Patients are registered by nurses.
type RegisterRequest struct {
	Email      string `json:"email" binding:"required,email"`
	Password   string `json:"password" binding:"required,min=8"`
	Name       string `json:"name" binding:"required"`
	Role       Role   `json:"role" binding:"required,oneof=doctor nurse"`
	Hospital   string `json:"hospital" binding:"required"`
	Department string `json:"department" binding:"required,department"`
}

type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        *User     `json:"user"`
}

// TokenClaims are the JWT claims. Role, hospital and department are advisory;
// the live user row is authoritative.
type TokenClaims struct {
	jwt.RegisteredClaims
	Role       Role   `json:"role"`
	Hospital   string `json:"hospital,omitempty"`
	Department string `json:"department,omitempty"`
}
