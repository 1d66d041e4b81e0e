package repository

import (
	"context"
	"time"

	"github.com/jwalitptl/portal-api/internal/model"
)

// All repository interfaces in one file
type (
	// TransitionAuditRepository stores status change attempts.
	TransitionAuditRepository interface {
		Create(ctx context.Context, entry *model.TransitionAudit) error
		List(ctx context.Context, filters model.AuditFilters) ([]*model.TransitionAudit, error)
		Cleanup(ctx context.Context, before time.Time) (int64, error)
	}
)
