package security

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Email token purposes. A token minted for one purpose is never accepted by
// an operation expecting the other.
const (
	PurposeVerify = "verify"
	PurposeReset  = "reset"
)

const refreshTokenType = "refresh"

// AccessClaims is the payload of a bearer access token. Subject carries the
// user id.
type AccessClaims struct {
	Role              string `json:"role"`
	IsProfileComplete bool   `json:"isProfileComplete"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	Role      string `json:"role"`
	TokenType string `json:"type"`
	jwt.RegisteredClaims
}

// EmailClaims is the payload of a single-purpose token embedded in
// verification and password-reset emails.
type EmailClaims struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

func SignAccessToken(secret string, userID string, role string, isProfileComplete bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		Role:              role,
		IsProfileComplete: isProfileComplete,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

func SignRefreshToken(secret string, userID string, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := RefreshClaims{
		Role:      role,
		TokenType: refreshTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, nil
}

func SignEmailToken(secret string, email string, purpose string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := EmailClaims{
		Email:   email,
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign email token: %w", err)
	}
	return signed, nil
}

func ParseAccessToken(tokenStr string, secret string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := parseInto(tokenStr, secret, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// ParseRefreshToken rejects any well-formed token whose type claim is not
// "refresh", so access tokens cannot be replayed against the refresh flow.
func ParseRefreshToken(tokenStr string, secret string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := parseInto(tokenStr, secret, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != refreshTokenType {
		return nil, fmt.Errorf("unexpected token type %q", claims.TokenType)
	}
	return claims, nil
}

func ParseEmailToken(tokenStr string, secret string) (*EmailClaims, error) {
	claims := &EmailClaims{}
	if err := parseInto(tokenStr, secret, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func parseInto(tokenStr string, secret string, claims jwt.Claims) error {
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return err
	}
	if !token.Valid {
		return fmt.Errorf("invalid token")
	}
	return nil
}
