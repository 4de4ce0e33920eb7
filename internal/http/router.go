// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, structured logging, panic recovery, metrics,
// CORS, security headers, authentication, and rate limiting, and mounts the
// persistent channel endpoint next to the REST surface.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-market-backend/internal/auth"
	"github.com/tbourn/go-market-backend/internal/config"
	"github.com/tbourn/go-market-backend/internal/http/handlers"
	"github.com/tbourn/go-market-backend/internal/http/middleware"
	"github.com/tbourn/go-market-backend/internal/services"
	"github.com/tbourn/go-market-backend/internal/ws"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine. It configures observability (tracing, metrics), rate limiting, CORS
// and security headers, health and metrics endpoints, and then mounts the
// versioned public API and the websocket channel.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per user/IP)
//  8. CORS and security headers
//  9. Auth (API group only; /health, /metrics and /ws stay outside)
func RegisterRoutes(r *gin.Engine, db *gorm.DB, hub *ws.Hub, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured access logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      false,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← db/hub
	verifier := auth.NewVerifier(cfg.JWTSecret)
	negSvc := services.NewNegotiationService(db)
	chatSvc := services.NewChatService(db, hub)
	msgSvc := services.NewMessageService(db, hub)
	authz := ws.Authorizer{Members: chatSvc}

	h := handlers.New(negSvc, chatSvc)
	wsh := handlers.NewWSHandler(verifier, hub, authz, msgSvc)

	// Persistent channel (credential in query param; Accept handles upgrade)
	r.GET("/ws", wsh.Connect)

	// Public API
	api := groupWithPrefix(r, cfg.APIBasePath)
	api.Use(middleware.Auth(verifier))
	api.Use(gzip.Gzip(gzip.DefaultCompression))
	{
		// Requests
		api.POST("/requests", h.CreateRequest)
		api.GET("/requests", h.ListRequests)
		api.POST("/requests/:id/complete", h.CompleteRequest)
		api.DELETE("/requests/:id", h.ArchiveRequest)

		// Offers
		api.POST("/requests/:id/offers", h.CreateOffer)
		api.GET("/requests/:id/offers", h.ListOffers)
		api.POST("/offers/:id/accept", h.AcceptOffer)
		api.POST("/offers/:id/withdraw", h.WithdrawOffer)
		api.DELETE("/offers/:id", h.DeleteOffer)

		// Chats
		api.POST("/requests/:id/chat", h.OpenChat)
		api.GET("/chats", h.ListChats)
		api.GET("/chats/:id/messages", h.ChatHistory)
		api.DELETE("/chats/:id", h.DeleteChat)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
