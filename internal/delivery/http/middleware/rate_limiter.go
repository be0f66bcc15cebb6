package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const rateWindow = time.Minute

// windowEntry tracks request counts per time window.
type windowEntry struct {
	count     int
	timestamp time.Time
}

// RateLimiter returns a middleware that enforces per-IP rate limiting using a
// fixed one-minute window. maxRequests is the maximum number of requests
// allowed per minute per IP. Stale entries are pruned inline.
func RateLimiter(maxRequests int) gin.HandlerFunc {
	var mu sync.Mutex
	clients := make(map[string]*windowEntry)
	lastPrune := time.Now()

	return func(c *gin.Context) {
		ip := c.ClientIP()
		now := time.Now()

		mu.Lock()
		if now.Sub(lastPrune) > 2*rateWindow {
			for key, entry := range clients {
				if now.Sub(entry.timestamp) > rateWindow {
					delete(clients, key)
				}
			}
			lastPrune = now
		}

		entry, exists := clients[ip]
		if !exists || now.Sub(entry.timestamp) > rateWindow {
			// New window
			clients[ip] = &windowEntry{count: 1, timestamp: now}
			mu.Unlock()
			c.Next()
			return
		}

		if entry.count >= maxRequests {
			retryAfter := rateWindow - now.Sub(entry.timestamp)
			mu.Unlock()
			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Maximum " + strconv.Itoa(maxRequests) + " requests per minute.",
			})
			return
		}

		entry.count++
		mu.Unlock()
		c.Next()
	}
}
