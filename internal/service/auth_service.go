package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const defaultTokenTTL = time.Hour

// Domain errors for auth flows.
var (
	ErrInvalidPassword = errors.New("invalid password")
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidToken    = errors.New("invalid token")
	ErrAuthDisabled    = errors.New("operator sign-in is not configured")
)

// Credentials is the single operator account of the HTTP API.
type Credentials struct {
	Username     string
	PasswordHash string // bcrypt
	SigningKey   string
	TokenTTL     time.Duration
}

// AuthService checks the operator credential and issues bearer tokens.
type AuthService struct {
	creds Credentials
}

func NewAuthService(creds Credentials) *AuthService {
	if creds.TokenTTL <= 0 {
		creds.TokenTTL = defaultTokenTTL
	}
	return &AuthService{creds: creds}
}

// Claims defines JWT claims
type Claims struct {
	jwt.RegisteredClaims
}

// GenerateToken validates credentials and returns JWT
func (s *AuthService) GenerateToken(username, password string) (string, error) {
	if s.creds.PasswordHash == "" || s.creds.SigningKey == "" {
		return "", ErrAuthDisabled
	}
	if username != s.creds.Username {
		return "", ErrUserNotFound
	}
	if err := verifyPassword(s.creds.PasswordHash, password); err != nil {
		return "", ErrInvalidPassword
	}
	return s.issueToken(username, time.Now())
}

// ParseToken parses JWT and returns the operator name it was issued to.
func (s *AuthService) ParseToken(accessToken string) (string, error) {
	if s.creds.SigningKey == "" {
		return "", ErrAuthDisabled
	}
	token, err := jwt.ParseWithClaims(accessToken, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Ensure HMAC signing is used
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.creds.SigningKey), nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}

	return claims.Subject, nil
}

// HashPassword returns a bcrypt hash for the auth.password_hash setting.
func HashPassword(password string) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// helper: verify password against hash
func verifyPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// helper: issue a signed JWT for the operator
func (s *AuthService) issueToken(subject string, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.creds.TokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	})
	return token.SignedString([]byte(s.creds.SigningKey))
}
