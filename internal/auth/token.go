// Package auth issues and validates the bearer tokens that guard privileged
// triggers.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/zfogg/friendlypix/internal/models"
	"github.com/zfogg/friendlypix/internal/repository"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrNoSecret     = errors.New("jwt secret is not configured")
)

// TokenValidator resolves a bearer token to the account it was issued for
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*models.User, error)
}

// Service signs HS256 tokens carrying the account uid
type Service struct {
	secret []byte
	users  repository.UserRepository
	now    func() time.Time
}

// NewService creates a token service backed by the identity directory
func NewService(secret []byte, users repository.UserRepository) *Service {
	return &Service{secret: secret, users: users, now: time.Now}
}

// IssueToken signs a token for user valid for ttl
func (s *Service) IssueToken(user *models.User, ttl time.Duration) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrNoSecret
	}
	now := s.now()
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"iat":     now.Unix(),
		"exp":     now.Add(ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks the signature and expiry, then loads the account so
// that claim changes take effect without reissuing tokens.
func (s *Service) ValidateToken(ctx context.Context, tokenString string) (*models.User, error) {
	if len(s.secret) == 0 {
		return nil, ErrNoSecret
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	uid, ok := claims["user_id"].(string)
	if !ok || uid == "" {
		return nil, fmt.Errorf("%w: missing user_id", ErrInvalidToken)
	}

	user, err := s.users.GetUser(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("user not found: %w", err)
	}
	return user, nil
}

var _ TokenValidator = (*Service)(nil)
