package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/portal-api/internal/model"
	"github.com/jwalitptl/portal-api/internal/repository"
	"github.com/jwalitptl/portal-api/pkg/logger"
)

const writeTimeout = 3 * time.Second

type Service struct {
	repo   repository.TransitionAuditRepository
	logger *logger.Logger
}

func NewService(repo repository.TransitionAuditRepository, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{repo: repo, logger: log}
}

// RecordTransition stores one status change attempt. The write outlives the
// request that caused it, bounded by its own timeout.
func (s *Service) RecordTransition(ctx context.Context, entry *model.TransitionAudit) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	s.logger.Debug("transition audited", "appointment_id", entry.AppointmentID, "outcome", entry.Outcome)
	return nil
}

// History lists a doctor's recent status change attempts, newest first.
func (s *Service) History(ctx context.Context, doctorID string, since time.Time, limit int) ([]*model.TransitionAudit, error) {
	return s.repo.List(ctx, model.AuditFilters{
		DoctorID: doctorID,
		Since:    since,
		Limit:    limit,
	})
}
