package services

import (
	"context"
	"errors"
	"time"

	"twintalk/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
	ErrUnauthorized = errors.New("unauthorized")
)

// Claims identify the user behind a connection. The identity collaborator
// issues them; this service only checks the signature.
type Claims struct {
	UserID      domain.UserID `json:"user_id"`
	DisplayName string        `json:"name"`
	jwt.RegisteredClaims
}

type AuthService struct {
	jwtSecret      []byte
	accessTokenTTL time.Duration
}

func NewAuthService(jwtSecret string, accessTokenTTL time.Duration) *AuthService {
	return &AuthService{
		jwtSecret:      []byte(jwtSecret),
		accessTokenTTL: accessTokenTTL,
	}
}

func (s *AuthService) GenerateToken(userID domain.UserID, displayName string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:      userID,
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// ResolveIdentity turns an optional bearer token into display attributes.
// An empty token yields anonymous attributes.
func (s *AuthService) ResolveIdentity(ctx context.Context, tokenString string) (domain.DisplayAttrs, error) {
	if tokenString == "" {
		return domain.DisplayAttrs{}, nil
	}

	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return domain.DisplayAttrs{}, err
	}
	return domain.DisplayAttrs{
		UserID:      claims.UserID,
		DisplayName: claims.DisplayName,
	}, nil
}
