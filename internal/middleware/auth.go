// auth.go authenticates requests. Regular endpoints use JWT bearer tokens;
// the audit administration endpoints additionally require the bcrypt-hashed
// admin token, with a per-IP attempt limiter to slow brute forcing.
package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meddev-qms/meddev-qms/internal/auth"
)

// AdminTokenHeader carries the admin token on audit administration requests.
const AdminTokenHeader = "X-Admin-Token"

// AuthMiddleware validates the Bearer JWT and stores the caller's identity in
// the context under user_id, user_name, and user_email.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header must be a Bearer token"})
			return
		}

		claims, err := auth.ValidateJWT(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_name", claims.Name)
		c.Set("user_email", claims.Email)

		c.Next()
	}
}

// adminAttemptLimiter limits admin token attempts per source IP.
type adminAttemptLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	max      int
	window   time.Duration
}

func newAdminAttemptLimiter() *adminAttemptLimiter {
	return &adminAttemptLimiter{
		attempts: make(map[string][]time.Time),
		max:      5,
		window:   15 * time.Minute,
	}
}

func (l *adminAttemptLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	recent := l.attempts[ip][:0]
	for _, t := range l.attempts[ip] {
		if now.Sub(t) < l.window {
			recent = append(recent, t)
		}
	}
	if len(recent) >= l.max {
		l.attempts[ip] = recent
		return false
	}
	l.attempts[ip] = append(recent, now)
	return true
}

func (l *adminAttemptLimiter) reset(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.attempts, ip)
}

// AdminTokenMiddleware protects the audit administration endpoints. When no
// admin token hash is configured the endpoints are disabled outright.
func AdminTokenMiddleware(tokenHash string) gin.HandlerFunc {
	limiter := newAdminAttemptLimiter()

	return func(c *gin.Context) {
		if tokenHash == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "Audit administration is disabled: no admin token configured",
			})
			return
		}

		ip := c.ClientIP()
		if !limiter.allow(ip) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Too many admin token attempts, try again later",
			})
			return
		}

		token := c.GetHeader(AdminTokenHeader)
		if !auth.VerifyAdminToken(tokenHash, token) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid admin token"})
			return
		}

		// Successful auth clears the attempt counter for this IP.
		limiter.reset(ip)
		c.Next()
	}
}
