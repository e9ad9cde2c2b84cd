package v1

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/careledger/careledger/internal/domain"
	"github.com/careledger/careledger/pkg/auth"
	"github.com/careledger/careledger/pkg/metrics"
	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// Authenticated validates the bearer token and stores the caller's
// identity on the request context.
func Authenticated(jwtManager *auth.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "missing bearer token"})
			return
		}

		claims, err := jwtManager.ValidateAccessToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid or expired token"})
			return
		}

		c.Set(identityKey, &domain.Identity{
			ID:       claims.UserID,
			Role:     claims.Role,
			Verified: claims.Verified,
		})
		c.Next()
	}
}

func callerIdentity(c *gin.Context) *domain.Identity {
	v, _ := c.Get(identityKey)
	id, _ := v.(*domain.Identity)
	return id
}

// Instrumented records request counts, latency and in-flight gauge.
func Instrumented(col *metrics.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		col.InFlightGauge.Inc()
		c.Next()
		col.InFlightGauge.Dec()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		code := c.Writer.Status()
		if code == http.StatusForbidden {
			col.AuthorizationDenials.Inc()
		}
		status := strconv.Itoa(code)
		col.RequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		col.RequestDuration.WithLabelValues(c.Request.Method, path, status).
			Observe(time.Since(start).Seconds())
	}
}
