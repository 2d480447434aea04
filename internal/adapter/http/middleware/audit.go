package middleware

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"wallet-settlement/internal/core/domain"
	"wallet-settlement/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SecurityAudit records refused callbacks and throttled requests. Successful
// settlement actions are audited by the services themselves.
func SecurityAudit(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		action, resourceType := classify(c.Request.URL.Path, c.Writer.Status())
		if action == "" {
			return
		}

		var actor *string
		if pid := c.GetHeader(HeaderParticipantID); pid != "" {
			actor = &pid
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			ActorID:      actor,
			Action:       action,
			ResourceType: resourceType,
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now(),
		})
	}
}

func classify(path string, status int) (domain.AuditAction, string) {
	switch {
	case status == http.StatusTooManyRequests:
		return domain.AuditActionRateLimited, "endpoint"
	case strings.HasSuffix(path, "/payments/callbacks") &&
		(status == http.StatusUnauthorized || status == http.StatusForbidden):
		return domain.AuditActionCallbackRejected, "participant"
	}
	return "", ""
}
