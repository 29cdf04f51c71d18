package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionCommit          AuditAction = "COMMIT"
	AuditActionTransitInitiate AuditAction = "TRANSIT_INITIATE"
	AuditActionTransitConfirm  AuditAction = "TRANSIT_CONFIRM"
	AuditActionTransitRelease  AuditAction = "TRANSIT_RELEASE"
	AuditActionRolloverResync  AuditAction = "ROLLOVER_RESYNC"
	AuditActionCreditFinalize  AuditAction = "CREDIT_FINALIZE"
	AuditActionRegister        AuditAction = "REGISTER"
	AuditActionLogin           AuditAction = "LOGIN"
)

// AuditLog records a single audited action. Balance mutations write
// their audit row inside the same database transaction as the mutation;
// a committed mutation without an audit trail is a defect.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	OperatorID   *uuid.UUID  `json:"operator_id,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
