package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/store-incident-api/internal/models"
	"github.com/noah-isme/store-incident-api/pkg/middleware/requestid"
)

// ContextResourceIDKey holds the uuid of the resource a handler acted on.
const ContextResourceIDKey = "resourceID"

// ActivityWriter persists activity log rows.
type ActivityWriter interface {
	Create(ctx context.Context, log *models.ActivityLog) error
}

// SetResourceID records the affected resource for the audit trail.
func SetResourceID(c *gin.Context, id string) {
	c.Set(ContextResourceIDKey, id)
}

// Audit records an activity log row after every successful request. Failures to write the
// row are logged and never change the response.
func Audit(repo ActivityWriter, logger *zap.Logger, action, resource string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		entry := &models.ActivityLog{
			Action:    action,
			Resource:  resource,
			IPAddress: c.ClientIP(),
			UserAgent: c.GetHeader("User-Agent"),
		}
		if claims, ok := Claims(c); ok {
			userID := claims.UserID
			entry.UserID = &userID
		}
		if id := c.GetString(ContextResourceIDKey); id != "" {
			entry.ResourceID = &id
		}
		entry.Payload, _ = json.Marshal(map[string]interface{}{
			"method":     c.Request.Method,
			"route":      c.FullPath(),
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
			"request_id": requestid.Value(c),
		})

		if err := repo.Create(c.Request.Context(), entry); err != nil {
			logger.Warn("failed to record activity", zap.String("action", action), zap.Error(err))
		}
	}
}
