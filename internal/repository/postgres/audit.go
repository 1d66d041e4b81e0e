package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/portal-api/internal/model"
	"github.com/jwalitptl/portal-api/internal/repository"
)

const defaultAuditListLimit = 100

type auditRepository struct {
	db *sqlx.DB
}

func NewAuditRepository(db *sqlx.DB) repository.TransitionAuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, entry *model.TransitionAudit) error {
	query := `
        INSERT INTO appointment_transition_audits (
            id, doctor_id, appointment_id, from_status, to_status,
            outcome, error, request_id, created_at
        ) VALUES (
            :id, :doctor_id, :appointment_id, :from_status, :to_status,
            :outcome, :error, :request_id, :created_at
        )
    `

	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("failed to create transition audit: %w", err)
	}
	return nil
}

func (r *auditRepository) List(ctx context.Context, filters model.AuditFilters) ([]*model.TransitionAudit, error) {
	query := `
        SELECT id, doctor_id, appointment_id, from_status, to_status,
               outcome, error, request_id, created_at
        FROM appointment_transition_audits WHERE 1=1
    `
	var args []interface{}

	if filters.DoctorID != "" {
		args = append(args, filters.DoctorID)
		query += fmt.Sprintf(" AND doctor_id = $%d", len(args))
	}
	if filters.AppointmentID != 0 {
		args = append(args, filters.AppointmentID)
		query += fmt.Sprintf(" AND appointment_id = $%d", len(args))
	}
	if !filters.Since.IsZero() {
		args = append(args, filters.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = defaultAuditListLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	entries := []*model.TransitionAudit{}
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list transition audits: %w", err)
	}
	return entries, nil
}

func (r *auditRepository) Cleanup(ctx context.Context, before time.Time) (int64, error) {
	query := `
        DELETE FROM appointment_transition_audits
        WHERE created_at < $1
    `

	result, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup transition audits: %w", err)
	}

	return result.RowsAffected()
}
