// Package auth signs and verifies the JWT tokens used by the API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// JWTManager signs and validates JWT tokens used by the API.
type JWTManager struct {
	secretKey string        // Secret key for HMAC signing (should be from environment)
	duration  time.Duration // How long tokens are valid (e.g., 24 hours)
}

// Claims is the custom JWT payload (marketplace user id + email).
type Claims struct {
	UserID               string `json:"user_id"` // Marketplace uniqueId, e.g. "usr_…"
	Email                string `json:"email"`   // User email from database
	jwt.RegisteredClaims        // Includes ExpiresAt, IssuedAt, etc.
}

// NewJWTManager returns a configured JWTManager.
func NewJWTManager(secretKey string, duration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey: secretKey,
		duration:  duration,
	}
}

// GenerateToken issues a signed JWT token for a user.
func (m *JWTManager) GenerateToken(userID, email string) (string, time.Time, error) {
	expiresAt := time.Now().Add(m.duration)

	claims := &Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	// HS256: HMAC with SHA-256, signed with the shared secret.
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(m.secretKey))
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// VerifyToken parses and validates a token and returns its claims.
func (m *JWTManager) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Reject tokens signed with anything other than HMAC; accepting an
		// attacker-chosen algorithm here would defeat signature checking.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.secretKey), nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// HashPassword returns a bcrypt hash for the provided plaintext.
func HashPassword(password string) (string, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashedPassword), nil
}

// CheckPassword compares a plaintext password against a bcrypt hash.
// CompareHashAndPassword is timing-safe.
func CheckPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
