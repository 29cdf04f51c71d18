package service

import (
	"context"
	"time"

	"arb-settlement-engine/internal/core/domain"
	"arb-settlement-engine/internal/core/ports"

	"github.com/rs/zerolog"
)

// AuditServiceImpl records request-level audit entries. Writes happen
// asynchronously so auditing never adds latency to the request path;
// balance mutations do not go through this service, they write their
// audit rows inside their own transactions.
type AuditServiceImpl struct {
	auditRepo ports.AuditRepository
	log       zerolog.Logger
}

// NewAuditService creates a new AuditServiceImpl.
func NewAuditService(auditRepo ports.AuditRepository, log zerolog.Logger) *AuditServiceImpl {
	return &AuditServiceImpl{auditRepo: auditRepo, log: log}
}

// Log persists an audit entry in the background. A failed write is
// logged and dropped; request handling is never failed over it.
func (s *AuditServiceImpl) Log(ctx context.Context, entry *domain.AuditLog) {
	go func() {
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := s.auditRepo.Create(bgCtx, entry); err != nil {
			s.log.Error().Err(err).
				Str("action", string(entry.Action)).
				Str("resource_id", entry.ResourceID).
				Msg("failed to write audit log")
		}
	}()
}
