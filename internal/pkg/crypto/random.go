package crypto

import (
	"crypto/rand"
	"fmt"
)

// nameChars contains characters used in generated file names.
const nameChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// RandomName generates a random alphanumeric string of the given length.
func RandomName(length int) (string, error) {
	return generateRandomString(length, nameChars)
}

// MustRandomName is RandomName for callers that cannot recover from an
// exhausted system random source.
func MustRandomName(length int) string {
	s, err := RandomName(length)
	if err != nil {
		panic(err)
	}
	return s
}

// generateRandomString generates a random string of the specified length
// using characters from the provided character set.
func generateRandomString(length int, charset string) (string, error) {
	result := make([]byte, length)
	charsetLen := len(charset)

	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	for i := 0; i < length; i++ {
		result[i] = charset[int(randomBytes[i])%charsetLen]
	}

	return string(result), nil
}
