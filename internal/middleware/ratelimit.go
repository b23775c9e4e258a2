package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"timetracker/internal/ratelimit"
	"timetracker/internal/security"
	"timetracker/pkg/response"

	"github.com/gin-gonic/gin"
)

// RateLimitObserver counts rejections per limiter.
type RateLimitObserver interface {
	ObserveRateLimited(limiter string)
}

// RateLimit counts each request against limiter, keyed by the authenticated
// user or the client IP for anonymous requests. A failing store lets the
// request through.
func RateLimit(limiter *ratelimit.Limiter, sec security.Logger, observer RateLimitObserver, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		userID := c.GetString(ContextUserID)
		key := userID
		if key == "" {
			key = "ip:" + c.ClientIP()
		}

		result, err := limiter.CheckLimit(c.Request.Context(), key)
		if err != nil {
			logger.Error("rate limiter unavailable", "limiter", limiter.Name(), "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Config().MaxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetTimeMillis(), 10))

		if !result.Allowed {
			sec.LogEvent(security.Event{
				Type:   security.EventRateLimitExceeded,
				UserID: userID,
				Details: map[string]any{
					"limiter":    limiter.Name(),
					"ip":         c.ClientIP(),
					"reset_time": result.ResetTimeMillis(),
				},
			})
			if observer != nil {
				observer.ObserveRateLimited(limiter.Name())
			}
			seconds, msg := response.RetryAfter(result.ResetTime, time.Now())
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, response.Error(http.StatusTooManyRequests, msg))
			return
		}
		c.Next()
	}
}
