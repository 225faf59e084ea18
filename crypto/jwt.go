package crypto

import (
	"errors"
	"fmt"
	"time"

	"squash/domain"

	"github.com/golang-jwt/jwt/v5"
)

// Session is what a guest token carries. Identity beyond this lives with the
// websocket connection.
type Session struct {
	PlayerId string
	Name     string
	Color    string
}

type sessionClaims struct {
	Id    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
	jwt.RegisteredClaims
}

type JWTManager struct {
	secretKey []byte
	maxAge    time.Duration
}

func NewJWTManager(secretKey string, maxAge time.Duration) *JWTManager {
	return &JWTManager{
		secretKey: []byte(secretKey),
		maxAge:    maxAge,
	}
}

func (m *JWTManager) MaxAge() time.Duration {
	return m.maxAge
}

func (m *JWTManager) Generate(s Session, now time.Time) (string, error) {
	claims := sessionClaims{
		Id:    s.PlayerId,
		Name:  s.Name,
		Color: s.Color,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.maxAge)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.UnexpectedTokenGenerationError, err)
	}

	return signedToken, nil
}

func (m *JWTManager) Verify(tokenString string) (Session, error) {
	token, err := jwt.ParseWithClaims(tokenString, &sessionClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, domain.ErrInvalidSigningAlg
		}
		return m.secretKey, nil
	})

	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidSigningAlg):
			return Session{}, err
		case errors.Is(err, jwt.ErrTokenExpired):
			return Session{}, domain.ErrExpiredToken
		case errors.Is(err, jwt.ErrSignatureInvalid):
			return Session{}, domain.ErrInvalidTokenSignature
		case errors.Is(err, jwt.ErrTokenMalformed):
			return Session{}, domain.ErrCorruptedToken
		default:
			return Session{}, fmt.Errorf("%w: %w", domain.UnexpectedTokenVerificationError, err)
		}
	}

	if claims, ok := token.Claims.(*sessionClaims); ok && token.Valid && claims.Id != "" {
		return Session{PlayerId: claims.Id, Name: claims.Name, Color: claims.Color}, nil
	}

	return Session{}, domain.ErrCorruptedToken
}
