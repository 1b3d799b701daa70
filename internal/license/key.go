package license

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"
)

// KeyPrefix starts every generated key.
const KeyPrefix = "GLAB"

// keyAlphabet omits 0/O and 1/I/L.
const keyAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const (
	keyGroups    = 3
	keyGroupSize = 4
)

// NormalizeKey trims surrounding whitespace and upper-cases the key.
func NormalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

// GenerateKey returns a new random key read from crypto/rand.
func GenerateKey() (string, error) {
	return generateKey(rand.Reader)
}

func generateKey(r io.Reader) (string, error) {
	var b strings.Builder
	b.WriteString(KeyPrefix)

	max := big.NewInt(int64(len(keyAlphabet)))
	for g := 0; g < keyGroups; g++ {
		b.WriteByte('-')
		for i := 0; i < keyGroupSize; i++ {
			n, err := rand.Int(r, max)
			if err != nil {
				return "", fmt.Errorf("failed to generate key: %w", err)
			}
			b.WriteByte(keyAlphabet[n.Int64()])
		}
	}

	return b.String(), nil
}

// ValidateKeyFormat checks that key looks like a generated key. Activation
// does not call it: keys issued in older formats still activate.
func ValidateKeyFormat(key string) error {
	parts := strings.Split(key, "-")
	if len(parts) != keyGroups+1 || parts[0] != KeyPrefix {
		return fmt.Errorf("license key must look like %s-XXXX-XXXX-XXXX", KeyPrefix)
	}
	for _, group := range parts[1:] {
		if len(group) != keyGroupSize {
			return fmt.Errorf("license key groups must be %d characters", keyGroupSize)
		}
		for _, c := range group {
			if !strings.ContainsRune(keyAlphabet, c) {
				return fmt.Errorf("license key contains invalid character %q", c)
			}
		}
	}
	return nil
}

// MaskKey hides all but the first two groups, for logs.
func MaskKey(key string) string {
	if len(key) < 8 {
		return "****"
	}
	parts := strings.Split(key, "-")
	if len(parts) >= 3 {
		masked := parts[0] + "-" + parts[1]
		for range parts[2:] {
			masked += "-****"
		}
		return masked
	}
	return key[:4] + "****"
}
