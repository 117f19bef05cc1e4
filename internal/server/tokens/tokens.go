// Package tokens generates and compares the opaque single-use tokens and
// session ids, and hashes passwords.
package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// DefaultSize is the number of random bytes in a token (256 bits).
const DefaultSize = 32

// Generate returns nbytes of crypto/rand output encoded as unpadded
// URL-safe base64. nbytes below 16 is raised to 16.
func Generate(nbytes int) (string, error) {
	if nbytes < 16 {
		nbytes = 16
	}
	b := make([]byte, nbytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Hash is the one-way form stored in place of a raw token.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Equal compares two strings in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
