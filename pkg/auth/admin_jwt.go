package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the only role accepted on administrative routes
const RoleAdmin = "admin"

const tokenIssuer = "moltingpot"

// Admin represents an authenticated operator
type Admin struct {
	Subject string `json:"subject"`
	Role    string `json:"role"`
}

// ExtractToken extracts the token from an Authorization header value.
// Supports "Bearer <token>" format.
func ExtractToken(authHeader string) (string, error) {
	if authHeader == "" {
		return "", errors.New("empty authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization header format")
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("empty token")
	}

	return token, nil
}

// AdminJWTAuth issues and verifies HS256 operator tokens
type AdminJWTAuth struct {
	SecretKey  []byte
	DefaultTTL time.Duration // Default: 24 hours
}

// NewAdminJWTAuth creates a new admin token authority
func NewAdminJWTAuth(secretKey string, defaultTTL time.Duration) (*AdminJWTAuth, error) {
	if secretKey == "" {
		return nil, errors.New("admin JWT secret cannot be empty")
	}

	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}

	return &AdminJWTAuth{
		SecretKey:  []byte(secretKey),
		DefaultTTL: defaultTTL,
	}, nil
}

// AdminClaims represents the admin token claims
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issue signs a token for subject; ttl <= 0 uses the default
func (a *AdminJWTAuth) Issue(subject string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", errors.New("subject cannot be empty")
	}
	if ttl <= 0 {
		ttl = a.DefaultTTL
	}

	tokenID, err := generateTokenID()
	if err != nil {
		return "", fmt.Errorf("failed to generate token ID: %w", err)
	}

	now := time.Now()
	claims := AdminClaims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ID:        tokenID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.SecretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign admin token: %w", err)
	}
	return token, nil
}

// Verify checks signature, expiry, issuer and role
func (a *AdminJWTAuth) Verify(tokenString string) (*Admin, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.SecretKey, nil
	}, jwt.WithIssuer(tokenIssuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Role != RoleAdmin {
		return nil, errors.New("token does not carry the admin role")
	}

	return &Admin{Subject: claims.Subject, Role: claims.Role}, nil
}

// generateTokenID generates a random token ID
func generateTokenID() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
