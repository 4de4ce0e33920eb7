// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file binds the caller's verified identity to the request context.
// Every downstream handler and service receives identity explicitly; nothing
// reads it from ambient state.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-market-backend/internal/auth"
)

// userIDKey is the Gin context key under which the verified identity is stored.
const userIDKey = "userID"

// Auth verifies the Authorization bearer credential and stores the resulting
// identity in the Gin context under "userID". Requests with a missing,
// malformed, or invalid credential are rejected with 401 and a standard
// error envelope.
func Auth(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := verifier.Verify(c.GetHeader("Authorization"))
		if err != nil {
			rid := c.Writer.Header().Get("X-Request-ID")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"request_id": rid,
				"code":       "unauthorized",
				"message":    "missing or invalid credential",
			})
			return
		}
		c.Set(userIDKey, identity)
		c.Next()
	}
}

// Identity returns the verified identity bound by Auth, or "" when absent.
func Identity(c *gin.Context) string {
	if v, ok := c.Get(userIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
