package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	database "github.com/festiko/gate-backend/internal"
	"github.com/festiko/gate-backend/internal/api"
	"github.com/festiko/gate-backend/internal/mesh"
)

func main() {
	database.Connect()

	port := os.Getenv("PORT")
	if port == "" {
		port = os.Getenv("GATE_PORT")
	}
	if port == "" {
		port = "8080"
	}
	log.Println("Starting gate backend server on :" + port + "...")
	router := gin.Default()

	// OpenTelemetry tracing (optional)
	if shutdown, ok := api.SetupOTelFromEnv(); ok {
		defer shutdown(context.Background())
		router.Use(otelgin.Middleware("gate-backend"))
	}

	// Mesh bus: NATS when configured (build with -tags nats), else local fan-out.
	var bus mesh.Bus
	if url := os.Getenv("GATE_NATS_URL"); url != "" {
		nb, err := mesh.NewNatsBus(url)
		if err != nil {
			log.Printf("warning: nats bus unavailable, using local bus: %v", err)
			bus = mesh.NewLocalBus()
		} else {
			bus = nb
		}
	} else {
		bus = mesh.NewLocalBus()
	}
	defer bus.Close()
	api.SetBus(bus)

	// Marks agents offline once their heartbeat falls out of the window.
	api.StartPresenceSweeper()

	// Metrics
	router.Use(api.MetricsMiddleware())
	// Assign a Request ID to every request for tracing
	router.Use(api.RequestIDMiddleware())
	// API versioning header middleware
	router.Use(api.VersionMiddleware("2026-09-01"))

	config := cors.Config{
		AllowAllOrigins:  true,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Length", "Content-Type", "Authorization", "X-API-Key", "X-Request-ID", "GATE-Version"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	// Override allowed origins via env (comma-separated)
	if origins := os.Getenv("GATE_CORS_ORIGINS"); origins != "" {
		config.AllowAllOrigins = false
		parts := strings.Split(origins, ",")
		allow := make([]string, 0, len(parts))
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				allow = append(allow, s)
			}
		}
		if len(allow) > 0 {
			config.AllowOrigins = allow
		}
	}
	router.Use(cors.New(config))

	// Optionally configure trusted proxies (comma-separated CIDRs or IPs)
	if tp := os.Getenv("GATE_TRUSTED_PROXIES"); tp != "" {
		parts := strings.Split(tp, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if err := router.SetTrustedProxies(parts); err != nil {
			log.Printf("warning: failed to set trusted proxies: %v", err)
		}
	}

	// --- Scan app (gate agents) ---
	scanRoutes := router.Group("/scan")
	scanRoutes.Use(api.RateLimitMiddlewareFromEnv())
	{
		scanRoutes.POST("/login", api.LoginAgent)

		authed := scanRoutes.Group("")
		authed.Use(api.AgentAuthMiddleware())
		{
			authed.GET("/events", api.ListEvents)
			authed.GET("/events/:eventId", api.GetEvent)
			authed.POST("/checkin", api.CheckIn)
			authed.POST("/heartbeat", api.Heartbeat)
		}
	}

	// --- Back office (organizer API key) ---
	orgRoutes := router.Group("/org")
	orgRoutes.Use(api.OrganizerKeyAuthMiddleware())
	{
		orgRoutes.POST("/agents", api.CreateAgent)
		orgRoutes.GET("/agents", api.GetAgents)
		orgRoutes.PATCH("/agents/:agentId/status", api.UpdateAgentStatus)
		orgRoutes.POST("/agents/:agentId/events", api.GrantEventAccess)
		orgRoutes.DELETE("/agents/:agentId/events/:eventId", api.RevokeEventAccess)
	}

	// Health and readiness
	router.GET("/healthz", func(c *gin.Context) { c.Status(200) })
	router.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 300*time.Millisecond)
		defer cancel()
		if err := database.DB.DB.PingContext(ctx); err != nil {
			c.JSON(503, gin.H{"status": "not ready", "error": err.Error()})
			return
		}
		// If the distributed rate limiter is configured, require Redis too.
		if addr := os.Getenv("GATE_REDIS_ADDR"); addr != "" {
			rdb := redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("GATE_REDIS_PASSWORD")})
			rctx, rcancel := context.WithTimeout(c.Request.Context(), 300*time.Millisecond)
			defer rcancel()
			if err := rdb.Ping(rctx).Err(); err != nil {
				c.JSON(503, gin.H{"status": "not ready", "error": "redis ping failed"})
				_ = rdb.Close()
				return
			}
			_ = rdb.Close()
		}
		c.JSON(200, gin.H{"status": "ready"})
	})

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/openapi.json", api.OpenAPIJSON)

	err := router.Run(":" + port)
	if err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
