package utils

import (
	"strings"
	"testing"
)

func TestGenerateAPIKey(t *testing.T) {
	key, prefix, err := GenerateAPIKey()
	if err != nil {
		t.Fatalf("GenerateAPIKey: %v", err)
	}
	if !strings.HasPrefix(key, APIKeyPrefix) {
		t.Fatalf("key missing prefix: %q", key)
	}
	if len(prefix) != 8 || !strings.HasPrefix(strings.TrimPrefix(key, APIKeyPrefix), prefix) {
		t.Fatalf("lookup prefix %q does not match key %q", prefix, key)
	}

	hash, err := HashSecret(key)
	if err != nil {
		t.Fatalf("HashSecret: %v", err)
	}
	if !CheckSecretHash(key, hash) {
		t.Fatal("round-trip hash check failed")
	}
	if CheckSecretHash(key+"x", hash) {
		t.Fatal("tampered key must not verify")
	}
}

func TestGenerateAccessCode(t *testing.T) {
	code, err := GenerateAccessCode(8)
	if err != nil {
		t.Fatalf("GenerateAccessCode: %v", err)
	}
	if len(code) != 8 {
		t.Fatalf("expected 8 characters, got %q", code)
	}
	for _, r := range code {
		if !strings.ContainsRune(accessCodeAlphabet, r) {
			t.Fatalf("code %q contains %q outside the alphabet", code, r)
		}
	}

	// n <= 0 falls back to the default length.
	code, err = GenerateAccessCode(0)
	if err != nil {
		t.Fatalf("GenerateAccessCode: %v", err)
	}
	if len(code) != 8 {
		t.Fatalf("expected default length 8, got %q", code)
	}
}
