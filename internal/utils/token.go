package utils // package utils provides helpers for token creation and hashing

import (
	"crypto/rand"
	"encoding/hex"
)

// SessionTokenBytes is the entropy of a session token: 32 bytes, 64 hex chars.
const SessionTokenBytes = 32

// NewSessionToken returns a fresh unguessable session token.
func NewSessionToken() (string, error) {
	return randomHex(SessionTokenBytes)
}

// IsSessionToken reports whether s has the shape NewSessionToken produces.
// Anything else can be rejected without a store round-trip.
func IsSessionToken(s string) bool {
	if len(s) != SessionTokenBytes*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
