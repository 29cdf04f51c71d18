package domain

import (
	"time"

	"github.com/google/uuid"
)

// OperatorStatus represents an operator account's state.
type OperatorStatus string

const (
	OperatorStatusActive    OperatorStatus = "ACTIVE"
	OperatorStatusSuspended OperatorStatus = "SUSPENDED"
)

// Operator is a human user of the system. Multiple operators may act on
// the same accounts concurrently from different devices.
type Operator struct {
	ID           uuid.UUID      `json:"id"`
	Username     string         `json:"username"`
	PasswordHash string         `json:"-"` // Argon2id, never exposed
	DisplayName  string         `json:"display_name"`
	Status       OperatorStatus `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
}

// IsActive returns true if the operator may authenticate.
func (o *Operator) IsActive() bool {
	return o.Status == OperatorStatusActive
}
