package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tasktrack-api/internal/models"
	"github.com/noah-isme/tasktrack-api/internal/service"
)

// AuditRecorder accepts audit events.
type AuditRecorder interface {
	Record(event service.AuditEvent)
}

// Audit records action against resource after a successful request. The
// :id path parameter, when present, becomes the resource id.
func Audit(recorder AuditRecorder, action, resource string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if recorder == nil || c.Writer.Status() >= 400 {
			return
		}

		event := service.AuditEvent{
			Action:     action,
			Resource:   resource,
			ResourceID: c.Param("id"),
			Values: map[string]interface{}{
				"method": c.Request.Method,
				"path":   c.FullPath(),
				"status": c.Writer.Status(),
			},
			Meta: ClientMeta(c),
		}
		if claims := Claims(c); claims != nil {
			userID := claims.UserID
			event.UserID = &userID
		}
		recorder.Record(event)
	}
}

// ClientMeta captures caller IP and user agent for sessions and audit entries.
func ClientMeta(c *gin.Context) models.ClientMeta {
	return models.ClientMeta{IP: c.ClientIP(), UserAgent: c.GetHeader("User-Agent")}
}
