package models

import "time"

// LoginRequest defines the structure for operator login requests
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse is returned after a successful login
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Operator is an account allowed to call the protected endpoints.
// Operators are configured, not stored.
type Operator struct {
	Email        string `mapstructure:"email"`
	PasswordHash string `mapstructure:"passwordHash"`
	Role         string `mapstructure:"role"`
}
