package middleware

import (
	"encoding/json"
	"strings"
	"time"

	"arb-settlement-engine/internal/core/domain"
	"arb-settlement-engine/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditLog creates an audit middleware that records successful write
// operations at the request level. Balance mutations additionally write
// their own audit rows inside the mutating transaction; this middleware
// covers the request envelope (who, from where, which endpoint).
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Only audit successful write operations (status 2xx)
		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		if c.Request.Method == "GET" || c.Request.Method == "HEAD" || c.Request.Method == "OPTIONS" {
			return
		}

		action, resourceType := mapPathToAction(c.Request.URL.Path)
		if action == "" {
			return
		}

		var operatorID *uuid.UUID
		if oid, exists := c.Get(CtxOperatorID); exists {
			if id, ok := oid.(uuid.UUID); ok {
				operatorID = &id
			}
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			ID:           uuid.New(),
			OperatorID:   operatorID,
			Action:       action,
			ResourceType: resourceType,
			IPAddress:    c.ClientIP(),
			Details:      string(details),
			CreatedAt:    time.Now(),
		})
	}
}

func mapPathToAction(path string) (domain.AuditAction, string) {
	switch {
	case path == "/api/v1/auth/register":
		return domain.AuditActionRegister, "operator"
	case path == "/api/v1/auth/login":
		return domain.AuditActionLogin, "session"
	case path == "/api/v1/settlements/commit":
		return domain.AuditActionCommit, "compound_operation"
	case path == "/api/v1/transfers":
		return domain.AuditActionTransitInitiate, "transit_transfer"
	case strings.HasSuffix(path, "/confirm") && strings.HasPrefix(path, "/api/v1/transfers/"):
		return domain.AuditActionTransitConfirm, "transit_transfer"
	case strings.HasSuffix(path, "/fail") && strings.HasPrefix(path, "/api/v1/transfers/"):
		return domain.AuditActionTransitRelease, "transit_transfer"
	case path == "/api/v1/credits/resync":
		return domain.AuditActionRolloverResync, "promotional_credit"
	case strings.HasSuffix(path, "/finalize") && strings.HasPrefix(path, "/api/v1/credits/"):
		return domain.AuditActionCreditFinalize, "promotional_credit"
	}
	return "", ""
}
