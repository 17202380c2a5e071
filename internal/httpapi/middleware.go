package httpapi

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
)

// jwtAuth validates a Bearer token against secret using HS256 and aborts
// the request with 401 on any failure. paths in skip bypass validation
// entirely (read-only endpoints stay open; mutating ones are guarded).
// An empty secret disables the check altogether, so a deployment that
// never configured ROUTER_JWT_SECRET keeps working unauthenticated.
func jwtAuth(secret string, skip map[string]bool) gin.HandlerFunc {
	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	keyFunc := func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}

	return func(c *gin.Context) {
		if secret == "" || skip[c.FullPath()] {
			c.Next()
			return
		}

		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Error: "missing or malformed Authorization header", Code: "UNAUTHORIZED",
			})
			return
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

		token, err := jwt.Parse(tokenStr, keyFunc, parserOpts...)
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
				Error: "invalid or expired token", Code: "UNAUTHORIZED",
			})
			return
		}
		c.Next()
	}
}

// rateLimiter imposes ROUTER_RATE_LIMIT_MS minimum inter-request spacing
// per remote address. A zero minInterval disables throttling.
func rateLimiter(minInterval time.Duration) gin.HandlerFunc {
	if minInterval <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	type visitor struct {
		limiter  *rate.Limiter
		lastSeen time.Time
	}
	var mu sync.Mutex
	visitors := make(map[string]*visitor)

	return func(c *gin.Context) {
		host, _, err := net.SplitHostPort(c.Request.RemoteAddr)
		if err != nil {
			host = c.Request.RemoteAddr
		}

		mu.Lock()
		v, ok := visitors[host]
		if !ok {
			v = &visitor{limiter: rate.NewLimiter(rate.Every(minInterval), 1)}
			visitors[host] = v
		}
		v.lastSeen = time.Now()
		for k, stale := range visitors {
			if time.Since(stale.lastSeen) > 10*time.Minute {
				delete(visitors, k)
			}
		}
		mu.Unlock()

		if !v.limiter.Allow() {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
				Error: "too many requests", Code: "RATE_LIMIT_EXCEEDED",
			})
			return
		}
		c.Next()
	}
}

// cors applies the CORS allow-list read from ROUTER_ALLOWED_ORIGINS. An
// empty allowedOrigins means no cross-origin requests are permitted,
// a fail-closed default rather than echoing "*".
func cors(allowedOrigins []string) gin.HandlerFunc {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origins[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Header("Access-Control-Max-Age", "86400")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// securityHeaders sets the common response hardening headers.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}
