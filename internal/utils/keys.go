package utils

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// APIKeyPrefix is the literal prefix of every organizer API key. The eight
// characters following it are stored in clear as the lookup prefix; the full
// key is only ever stored as a bcrypt hash.
const APIKeyPrefix = "gate_sk_"

// HashSecret bcrypt-hashes a secret (organizer API key) for storage.
func HashSecret(secret string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckSecretHash compares a presented secret with a stored bcrypt hash.
func CheckSecretHash(secret, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	return err == nil
}

// GenerateAPIKey returns a fresh organizer API key and its lookup prefix.
func GenerateAPIKey() (key string, keyPrefix string, err error) {
	raw := make([]byte, 24)
	if _, err := rand.Read(raw); err != nil {
		return "", "", err
	}
	random := fmt.Sprintf("%x", raw)
	key = APIKeyPrefix + random
	return key, random[:8], nil
}

// accessCodeAlphabet avoids characters gate staff confuse when reading codes
// aloud (0/O, 1/I/L).
const accessCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// GenerateAccessCode returns an upper-case agent access code of n characters.
func GenerateAccessCode(n int) (string, error) {
	if n <= 0 {
		n = 8
	}
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range raw {
		out[i] = accessCodeAlphabet[int(b)%len(accessCodeAlphabet)]
	}
	return string(out), nil
}
