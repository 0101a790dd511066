package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ArowuTest/raffle-engine/internal/models"
	"github.com/ArowuTest/raffle-engine/pkg/jwt"
	"golang.org/x/crypto/bcrypt"
)

// AuthServiceImpl authenticates configured operators
type AuthServiceImpl struct {
	operators map[string]models.Operator
	tokens    *jwt.TokenService
}

var _ AuthService = (*AuthServiceImpl)(nil)

// NewAuthService creates a new AuthServiceImpl
func NewAuthService(operators []models.Operator, tokens *jwt.TokenService) *AuthServiceImpl {
	byEmail := make(map[string]models.Operator, len(operators))
	for _, op := range operators {
		byEmail[strings.ToLower(strings.TrimSpace(op.Email))] = op
	}
	return &AuthServiceImpl{operators: byEmail, tokens: tokens}
}

// Login checks the operator's bcrypt password hash and issues a JWT
func (s *AuthServiceImpl) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	op, ok := s.operators[email]
	if !ok {
		slog.Warn("Login attempt for unknown operator", "email", email)
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(req.Password)); err != nil {
		slog.Warn("Login attempt with wrong password", "email", email)
		return nil, ErrInvalidCredentials
	}

	role := op.Role
	if role == "" {
		role = "operator"
	}
	token, expiresAt, err := s.tokens.Issue(email, role)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	slog.Info("Operator logged in", "email", email, "role", role)
	return &models.LoginResponse{Token: token, ExpiresAt: expiresAt}, nil
}
