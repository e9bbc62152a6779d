package repository

import (
	"context"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

type auditLogRepository struct {
	db DBTX
}

// NewAuditLogRepository builds repository.
func NewAuditLogRepository(db DBTX) AuditLogRepository {
	return &auditLogRepository{db: db}
}

func (r *auditLogRepository) Create(ctx context.Context, entry *domain.AuditLog) error {
	const query = `
        INSERT INTO ticket_audit_logs (id, ticket_id, user_id, update_type, update_fields)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING created_at`
	return r.db.QueryRow(ctx, query,
		entry.ID,
		entry.TicketID,
		entry.UserID,
		entry.UpdateType,
		entry.UpdateFields,
	).Scan(&entry.Timestamp)
}

func (r *auditLogRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.AuditLog, error) {
	const query = `
        SELECT id::text, ticket_id::text, user_id::text, update_type, update_fields, created_at
        FROM ticket_audit_logs WHERE ticket_id=$1 ORDER BY seq ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []domain.AuditLog{}
	for rows.Next() {
		var entry domain.AuditLog
		if err := rows.Scan(
			&entry.ID,
			&entry.TicketID,
			&entry.UserID,
			&entry.UpdateType,
			&entry.UpdateFields,
			&entry.Timestamp,
		); err != nil {
			return nil, err
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}

func (r *auditLogRepository) DeleteByTicket(ctx context.Context, ticketID string) (int64, error) {
	cmd, err := r.db.Exec(ctx, `DELETE FROM ticket_audit_logs WHERE ticket_id=$1`, ticketID)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}
