package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SchedulerSubject is the subject claim carried by tokens that may trigger
// maintenance endpoints such as the expiry sweep.
const SchedulerSubject = "scheduler"

// ErrInvalidSchedulerToken is returned for tokens that fail signature, expiry
// or subject checks.
var ErrInvalidSchedulerToken = errors.New("invalid scheduler token")

// NewSchedulerToken signs a short-lived HS256 token an external scheduler
// presents as a Bearer credential.
func NewSchedulerToken(secret string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   SchedulerSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifySchedulerToken checks raw against secret. Only HMAC signing methods
// are accepted.
func VerifySchedulerToken(secret, raw string) error {
	var claims jwt.RegisteredClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidSchedulerToken
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return ErrInvalidSchedulerToken
	}
	if claims.Subject != SchedulerSubject {
		return ErrInvalidSchedulerToken
	}
	return nil
}
