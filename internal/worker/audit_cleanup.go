package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/jwalitptl/portal-api/internal/repository"
	"github.com/jwalitptl/portal-api/pkg/logger"
)

type AuditCleanupWorker struct {
	repo            repository.TransitionAuditRepository
	retentionDays   int
	cleanupInterval time.Duration
	logger          *logger.Logger
	now             func() time.Time
}

func NewAuditCleanupWorker(repo repository.TransitionAuditRepository, retentionDays int, cleanupInterval time.Duration, log *logger.Logger) *AuditCleanupWorker {
	if log == nil {
		log = logger.Nop()
	}
	return &AuditCleanupWorker{
		repo:            repo,
		retentionDays:   retentionDays,
		cleanupInterval: cleanupInterval,
		logger:          log,
		now:             time.Now,
	}
}

// Start prunes expired audit rows on every tick until ctx is done.
func (w *AuditCleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Cleanup(ctx); err != nil {
				w.logger.Error(err, "audit cleanup failed")
			}
		}
	}
}

// Cleanup runs one pruning pass.
func (w *AuditCleanupWorker) Cleanup(ctx context.Context) (int64, error) {
	cutoff := w.now().AddDate(0, 0, -w.retentionDays)

	rows, err := w.repo.Cleanup(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup transition audits: %w", err)
	}

	w.logger.Info("cleaned up transition audits", "rows", rows, "cutoff", cutoff)
	return rows, nil
}
