// Package security provides the header middleware XDR applies to both the
// data plane (agent traffic carrying X-Agent-ID/X-Upstream-Host) and the
// /_xdr/ admin surface (control endpoints + websocket trace stream).
package security

import (
	"github.com/gin-gonic/gin"
)

// xdrResponseHeaders are the response headers XDR itself sets on a
// forwarded or challenged request; CORS must expose them or a browser-based
// agent client can't read its own tx hash / balance off the response.
var xdrResponseHeaders = "X-XDR-Tx-Hash, X-XDR-Chain-Id, X-XDR-Balance-After, X-Request-ID"

// HeadersMiddleware adds security headers to all responses
func HeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Prevent MIME type sniffing
		c.Header("X-Content-Type-Options", "nosniff")

		// Prevent clickjacking
		c.Header("X-Frame-Options", "DENY")

		// Enable XSS filter
		c.Header("X-XSS-Protection", "1; mode=block")

		// Referrer policy
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		// Content Security Policy. connect-src allows ws:/wss: for the
		// /_xdr/stream websocket live trace feed.
		c.Header("Content-Security-Policy", "default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline' https://fonts.googleapis.com; font-src 'self' https://fonts.gstatic.com; img-src 'self' data:; connect-src 'self' ws: wss:; frame-ancestors 'none'")

		// Permissions Policy
		c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

		c.Next()
	}
}

// CORSMiddleware handles CORS for the data-plane and admin endpoints. Agent
// clients running in a browser need to both send XDR's custom request
// headers and read XDR's custom response headers, so both are allow-listed
// explicitly rather than left to the default same-origin behavior.
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	originsMap := make(map[string]bool)
	for _, o := range allowedOrigins {
		originsMap[o] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		// Check if origin is allowed
		if len(allowedOrigins) == 0 || originsMap[origin] || originsMap["*"] {
			if origin != "" {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID, X-Agent-ID, X-Upstream-Host, X-Simulate-Payment")
			c.Header("Access-Control-Expose-Headers", xdrResponseHeaders)
			c.Header("Access-Control-Max-Age", "86400")
			// Only set Allow-Credentials when NOT using wildcard origins
			// (wildcard + credentials is a security vulnerability per CORS spec)
			if !originsMap["*"] {
				c.Header("Access-Control-Allow-Credentials", "true")
			}
		}

		// Handle preflight
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
