package utils

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RoleAgent is the only role this service ever places in a session token.
// The scan middleware rejects tokens carrying anything else, so scope
// resolution can never run against a non-agent principal.
const RoleAgent = "agent"

// GetJwtSecretString returns the resolved JWT secret as a string.
// Resolution order: JWT_SECRET -> GATE_JWT_SECRET -> dev default (non-strict only).
func GetJwtSecretString() (string, error) {
	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		secret = strings.TrimSpace(os.Getenv("GATE_JWT_SECRET"))
	}
	if secret == "" {
		// Safe dev default unless GATE_STRICT_JWT insists on an env secret.
		strict := strings.EqualFold(strings.TrimSpace(os.Getenv("GATE_STRICT_JWT")), "1") ||
			strings.EqualFold(strings.TrimSpace(os.Getenv("GATE_STRICT_JWT")), "true")
		if !strict {
			secret = "dev_jwt_secret_123"
		}
	}
	if secret == "" {
		return "", fmt.Errorf("JWT_SECRET environment variable not set")
	}
	return secret, nil
}

// GetJwtSecretBytes returns the resolved JWT secret in []byte form.
func GetJwtSecretBytes() ([]byte, error) {
	s, err := GetJwtSecretString()
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// GenerateAgentJWT creates a session token for a gate agent. The token binds
// the agent to its organizer; operational status is re-checked at use-time,
// so a blocked agent with a live token still fails every call.
func GenerateAgentJWT(agentID, organizerID uuid.UUID) (string, error) {
	jwtSecret, err := GetJwtSecretBytes()
	if err != nil {
		return "", err
	}

	claims := jwt.MapClaims{
		"agent_id": agentID.String(),
		"org_id":   organizerID.String(),
		"role":     RoleAgent,
		"exp":      time.Now().Add(time.Hour * 24).Unix(),
		"iat":      time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}
