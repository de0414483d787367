package auth

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Service-account tokens take the form "<user-id>.<secret>"; only the
// bcrypt hash of the secret is stored on the user row.

// HashTokenSecret hashes a token secret with the configured cost.
func HashTokenSecret(secret string, cost int) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// CompareTokenSecret verifies a token secret against its stored hash.
func CompareTokenSecret(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}

// SplitServiceToken parses "<user-id>.<secret>". ok is false when the
// token does not carry the separator.
func SplitServiceToken(token string) (userID, secret string, ok bool) {
	idx := strings.IndexByte(token, '.')
	if idx <= 0 || idx == len(token)-1 {
		return "", "", false
	}
	// JWTs also contain dots; a JWT never parses as a UUID prefix, so the
	// caller tries the JWT path first.
	return token[:idx], token[idx+1:], true
}
