// Package crypto holds the random-token and comparison primitives the
// security core is built on.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// TokenBytes is the default entropy for session and CSRF tokens (256 bits).
const TokenBytes = 32

// GenerateToken returns a hex-encoded random string with n bytes of entropy
// from the operating system CSPRNG. n must be at least 16 (128 bits).
func GenerateToken(n int) (string, error) {
	if n < 16 {
		return "", fmt.Errorf("token entropy too low: %d bytes", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("secure random generator unavailable: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// SecureCompare reports whether a and b are equal without leaking the
// position of the first differing byte.
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// MustProbe verifies the CSPRNG is usable. Callers run it once at startup;
// a dead generator is a fatal condition, not something to degrade around.
func MustProbe() error {
	var probe [16]byte
	if _, err := rand.Read(probe[:]); err != nil {
		return fmt.Errorf("secure random generator probe failed: %w", err)
	}
	return nil
}
