package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token type tags embedded in the "type" claim by the Quizlane API.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	// ErrNoToken is returned when no credential is available
	ErrNoToken = errors.New("no token available")

	// ErrInvalidToken is returned when a credential cannot be parsed
	ErrInvalidToken = errors.New("invalid token")
)

// Claims is the payload the Quizlane API embeds in both credentials.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string `json:"userId,omitempty"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Type      string `json:"type,omitempty"`
}

// Info describes a credential's remaining validity at a single instant.
// It is always recomputed from the credential, never cached, because the
// wall clock advances between calls.
type Info struct {
	ExpiresAt time.Time
	Expired   bool
	TTL       time.Duration
}

// Decode extracts the claims from a credential without verifying its
// signature. Signature verification is the server's job; the client only
// needs the embedded expiry and type tag.
func Decode(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrNoToken
	}

	claims := &Claims{}
	_, _, err := jwt.NewParser().ParseUnverified(tokenString, claims)
	if err != nil {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// info computes the validity snapshot for a credential at time now.
// Returns nil for a malformed credential or one without an expiry;
// callers must treat nil as "assume expired".
func info(tokenString string, now time.Time) *Info {
	claims, err := Decode(tokenString)
	if err != nil {
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}

	expiresAt := claims.ExpiresAt.Time
	return &Info{
		ExpiresAt: expiresAt,
		Expired:   now.After(expiresAt),
		TTL:       expiresAt.Sub(now),
	}
}
