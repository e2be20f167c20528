// Package middleware holds the gin middleware shared by the API
// server: per-client rate limiting, request size caps and API key
// authentication.
package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/rmitchellscott/epdkit/internal/logging"
)

// PerIPRateLimiter throttles conversion endpoints by client IP using
// token buckets. Entries for idle clients are dropped by a background
// sweep so the map does not grow without bound.
type PerIPRateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*client
	rate     rate.Limit
	burst    int
	lifetime time.Duration
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewPerIPRateLimiter allows perMinute requests sustained with the
// given burst on top.
func NewPerIPRateLimiter(perMinute, burst int) *PerIPRateLimiter {
	l := &PerIPRateLimiter{
		clients:  make(map[string]*client),
		rate:     rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
		lifetime: 10 * time.Minute,
	}
	go l.cleanupRoutine()
	return l
}

func (l *PerIPRateLimiter) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = time.Now()
	return c.limiter
}

// RateLimit rejects requests from clients that exhausted their bucket.
func (l *PerIPRateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !l.get(ip).Allow() {
			logging.WarnWithComponent(logging.ComponentServer, "Rate limit exceeded", "ip", ip)
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (l *PerIPRateLimiter) cleanupRoutine() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		l.mu.Lock()
		cutoff := time.Now().Add(-l.lifetime)
		for ip, c := range l.clients {
			if c.lastSeen.Before(cutoff) {
				delete(l.clients, ip)
			}
		}
		l.mu.Unlock()
	}
}

// RequestSizeLimit rejects uploads whose declared length exceeds
// maxBytes and caps the body reader for requests without one.
func RequestSizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			logging.WarnWithComponent(logging.ComponentServer, "Request too large",
				"size", c.Request.ContentLength, "limit", maxBytes, "ip", c.ClientIP())
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":    "request payload too large",
				"max_size": fmt.Sprintf("%dKB", maxBytes/1024),
			})
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
