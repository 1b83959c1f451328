package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	database "github.com/festiko/gate-backend/internal"
	"github.com/festiko/gate-backend/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// AgentAuthMiddleware authenticates scan-app requests with the agent session
// JWT. It only establishes identity; operational status is re-checked against
// the store by every handler, so a freshly blocked agent fails its next call
// even with a valid token.
func AgentAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header format must be Bearer {token}"})
			return
		}
		tokenString := parts[1]

		jwtSecret, err := utils.GetJwtSecretBytes()
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "JWT secret configuration error"})
			return
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
			}
			return jwtSecret, nil
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		// Closed principal check: only agent tokens pass. Organizer dashboard
		// tokens and anything else minted elsewhere are rejected outright.
		role, _ := claims["role"].(string)
		if role != utils.RoleAgent {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		agentIDStr, _ := claims["agent_id"].(string)
		orgIDStr, _ := claims["org_id"].(string)
		agentID, err := uuid.Parse(agentIDStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}
		orgID, err := uuid.Parse(orgIDStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set("agentID", agentID.String())
		c.Set("organizerID", orgID.String())
		c.Next()
	}
}

// OrganizerKeyAuthMiddleware authenticates back-office provisioning requests
// using an organizer API key. Expected header: X-API-Key or
// Authorization: GATE <key>. On success, sets organizerID and apiKeyID.
func OrganizerKeyAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("X-API-Key")
		if raw == "" {
			auth := c.GetHeader("Authorization")
			if auth != "" {
				parts := strings.SplitN(auth, " ", 2)
				if len(parts) == 2 && strings.EqualFold(parts[0], "GATE") {
					raw = parts[1]
				}
			}
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API key required"})
			return
		}
		if !strings.HasPrefix(raw, utils.APIKeyPrefix) || len(raw) <= len(utils.APIKeyPrefix)+8 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key format"})
			return
		}
		keyPrefix := raw[len(utils.APIKeyPrefix) : len(utils.APIKeyPrefix)+8]

		var key database.OrganizerAPIKey
		err := database.DB.Get(&key, `SELECT id, organizer_id, name, key_prefix, hashed_key, last_used_at, expires_at, revoked_at, created_at FROM organizer_api_keys WHERE key_prefix=$1 AND revoked_at IS NULL LIMIT 1`, keyPrefix)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API key not found or revoked"})
			return
		}
		if key.ExpiresAt != nil && time.Now().After(*key.ExpiresAt) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API key expired"})
			return
		}
		if !utils.CheckSecretHash(raw, key.HashedKey) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}
		// Best effort; losing this write is fine.
		_, _ = database.DB.Exec(`UPDATE organizer_api_keys SET last_used_at=$1 WHERE id=$2`, time.Now(), key.ID)
		c.Set("organizerID", key.OrganizerID.String())
		c.Set("apiKeyID", key.ID.String())
		c.Next()
	}
}

// RequestIDMiddleware ensures every request has an X-Request-ID. If absent, generate one.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.New().String()
		}
		ctx := context.WithValue(c.Request.Context(), "requestID", rid)
		c.Request = c.Request.WithContext(ctx)
		c.Set("requestID", rid)
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Next()
	}
}

// Simple in-memory IP rate limiter (fixed window)
type clientWindow struct {
	count       int
	windowStart time.Time
}

type ipLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientWindow
	limit   int
	window  time.Duration
}

func newIPLimiter(limit int, window time.Duration) *ipLimiter {
	return &ipLimiter{
		clients: make(map[string]*clientWindow),
		limit:   limit,
		window:  window,
	}
}

func (l *ipLimiter) allow(ip string) (bool, time.Duration) {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	cw, ok := l.clients[ip]
	if !ok {
		l.clients[ip] = &clientWindow{count: 1, windowStart: now}
		return true, 0
	}
	if now.Sub(cw.windowStart) >= l.window {
		cw.count = 1
		cw.windowStart = now
		return true, 0
	}
	if cw.count < l.limit {
		cw.count++
		return true, 0
	}
	retryAfter := l.window - now.Sub(cw.windowStart)
	return false, retryAfter
}

// RateLimitMiddleware limits requests per client IP. Scanners retry on flaky
// venue networks, so the default is generous.
func RateLimitMiddleware(limitPerMinute int) gin.HandlerFunc {
	if limitPerMinute <= 0 {
		limitPerMinute = 240
	}
	limiter := newIPLimiter(limitPerMinute, time.Minute)
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if net.ParseIP(ip) == nil {
			ip = "unknown"
		}
		ok, retryAfter := limiter.allow(ip)
		if !ok {
			c.Header("Retry-After", fmt.Sprintf("%d", int(retryAfter.Seconds())))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded. Try again later."})
			return
		}
		c.Next()
	}
}

// RateLimitMiddlewareFromEnv builds a rate-limit middleware using env config.
// GATE_SCAN_RPM (default 240). If GATE_REDIS_ADDR is set, counts live in
// Redis so the limit holds across service instances; else in-memory.
func RateLimitMiddlewareFromEnv() gin.HandlerFunc {
	rpm := 240
	if v := os.Getenv("GATE_SCAN_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			rpm = n
		}
	}
	addr := os.Getenv("GATE_REDIS_ADDR")
	if addr == "" {
		return RateLimitMiddleware(rpm)
	}
	rc := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("GATE_REDIS_PASSWORD"),
		DB:       parseEnvInt("GATE_REDIS_DB", 0),
	})
	fallback := RateLimitMiddleware(rpm)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		if net.ParseIP(ip) == nil {
			ip = "unknown"
		}
		now := time.Now().UTC()
		key := fmt.Sprintf("rl:%s:%04d%02d%02d%02d%02d", ip, now.Year(), int(now.Month()), now.Day(), now.Hour(), now.Minute())
		ctx, cancel := context.WithTimeout(c.Request.Context(), 200*time.Millisecond)
		defer cancel()

		n, err := rc.Incr(ctx, key).Result()
		if err != nil {
			// Redis down: fall back to in-memory limiting rather than failing scans.
			fallback(c)
			return
		}
		_ = rc.Expire(ctx, key, 61*time.Second).Err()
		if int(n) > rpm {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded. Try again later."})
			return
		}
		c.Next()
	}
}

// helpers
func parseEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// VersionMiddleware reads the GATE-Version request header; if absent, uses the
// default; always sets X-GATE-Version in the response.
func VersionMiddleware(defaultVersion string) gin.HandlerFunc {
	if defaultVersion == "" {
		defaultVersion = "2026-09-01"
	}
	return func(c *gin.Context) {
		ver := c.GetHeader("GATE-Version")
		if ver == "" {
			ver = defaultVersion
		}
		c.Set("gateVersion", ver)
		c.Writer.Header().Set("X-GATE-Version", ver)
		c.Next()
	}
}
