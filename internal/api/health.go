package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// OnlineCounter reports how many identities have a live route on this node.
type OnlineCounter interface {
	Count() int
}

// StorageCheck pings the storage backend. Nil means nothing to check.
type StorageCheck func(ctx context.Context) error

// Health handles GET /v1/health.
func Health(online OnlineCounter, check StorageCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "storage unavailable", "online": online.Count()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "online": online.Count()})
	}
}
