package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"project-chat/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims carries the authenticated identity. Name and avatar ride along so
// the chat service can snapshot them onto messages without a user-service
// round trip.
type Claims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// Manager issues and validates HS256 tokens.
type Manager struct {
	secret   []byte
	issuer   string
	tokenTTL time.Duration
}

// NewManager constructs a Manager.
func NewManager(secret, issuer string, tokenTTL time.Duration) *Manager {
	return &Manager{secret: []byte(secret), issuer: issuer, tokenTTL: tokenTTL}
}

// Issue creates a signed token for the user.
func (m *Manager) Issue(user models.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.tokenTTL)),
		},
		UserID: user.ID,
		Name:   user.Name,
		Avatar: user.Avatar,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Validate parses the token and returns the embedded user.
func (m *Manager) Validate(token string) (models.User, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.User{}, ErrExpiredToken
		}
		return models.User{}, ErrInvalidToken
	}
	if !parsed.Valid || claims.UserID == "" {
		return models.User{}, ErrInvalidToken
	}
	return models.User{ID: claims.UserID, Name: claims.Name, Avatar: claims.Avatar}, nil
}
