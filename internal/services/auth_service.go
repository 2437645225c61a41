package services

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"sendflow/internal/models"
)

const (
	accessTokenTTL  = 24 * time.Hour
	refreshTokenTTL = 7 * 24 * time.Hour

	tokenAccess  = "access"
	tokenRefresh = "refresh"
)

var ErrInvalidToken = errors.New("invalid token")

type AuthService struct {
	secretKey []byte
	logger    zerolog.Logger
}

type Claims struct {
	UserID  int         `json:"user_id"`
	Email   string      `json:"email,omitempty"`
	Phone   string      `json:"phone,omitempty"`
	Role    models.Role `json:"role,omitempty"`
	Country string      `json:"country,omitempty"`
	Kind    string      `json:"kind"`
	jwt.RegisteredClaims
}

// Session is the protocol caller the token stands for.
func (c *Claims) Session() models.Session {
	return models.Session{
		UserID:  c.UserID,
		Role:    c.Role,
		Country: c.Country,
		Phone:   c.Phone,
		Email:   c.Email,
	}
}

func NewAuthService(secret string, logger zerolog.Logger) *AuthService {
	if secret == "" {
		secret = "default-secret-key-change-in-production"
		logger.Warn().Msg("JWT_SECRET not set, using default key")
	}
	return &AuthService{
		secretKey: []byte(secret),
		logger:    logger,
	}
}

func (s *AuthService) GenerateToken(user *models.User) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:  user.ID,
		Email:   user.Email,
		Phone:   user.Phone,
		Role:    user.Role,
		Country: user.Country,
		Kind:    tokenAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	return s.sign(claims)
}

func (s *AuthService) GenerateRefreshToken(userID int) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Kind:   tokenRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(refreshTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return s.sign(claims)
}

func (s *AuthService) sign(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.secretKey)
	if err != nil {
		s.logger.Error().Err(err).Str("kind", claims.Kind).Msg("Error generating token")
		return "", err
	}
	return tokenString, nil
}

func (s *AuthService) parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secretKey, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateToken accepts access tokens only.
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Kind != tokenAccess {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateRefreshToken returns the user id carried by a refresh token.
func (s *AuthService) ValidateRefreshToken(tokenString string) (int, error) {
	claims, err := s.parse(tokenString)
	if err != nil || claims.Kind != tokenRefresh {
		return 0, ErrInvalidToken
	}
	return claims.UserID, nil
}
