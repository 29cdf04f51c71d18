package postgres

import (
	"context"
	"fmt"

	"arb-settlement-engine/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// AuditRepo implements ports.AuditRepository.
type AuditRepo struct {
	pool Pool
}

// NewAuditRepo creates a PostgreSQL-backed AuditRepo.
func NewAuditRepo(pool Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

const auditInsert = `INSERT INTO audit_logs (id, operator_id, action, resource_type, resource_id, details, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

// Create inserts a standalone audit record.
func (r *AuditRepo) Create(ctx context.Context, log *domain.AuditLog) error {
	_, err := r.pool.Exec(ctx, auditInsert,
		log.ID, log.OperatorID, log.Action, log.ResourceType,
		log.ResourceID, log.Details, log.IPAddress, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// CreateInTx inserts an audit record inside the caller's transaction so
// the record commits or rolls back together with the mutation it pairs
// with.
func (r *AuditRepo) CreateInTx(ctx context.Context, tx pgx.Tx, log *domain.AuditLog) error {
	_, err := tx.Exec(ctx, auditInsert,
		log.ID, log.OperatorID, log.Action, log.ResourceType,
		log.ResourceID, log.Details, log.IPAddress, log.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit log in tx: %w", err)
	}
	return nil
}
