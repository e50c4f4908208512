package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// stateEntropyBytes is the entropy of a generated state parameter. 32 bytes
// (256 bits) is double the 128-bit minimum recommended for CSRF tokens.
const stateEntropyBytes = 32

// GenerateState returns a cryptographically random, base64url-encoded state
// parameter for correlating an authorization redirect with its callback.
func GenerateState() (string, error) {
	return GenerateRandomToken(stateEntropyBytes)
}

// GenerateRandomToken returns a base64url-encoded random string with the
// given number of bytes of entropy.
func GenerateRandomToken(entropyBytes int) (string, error) {
	b := make([]byte, entropyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
