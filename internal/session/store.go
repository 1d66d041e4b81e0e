// Package session keeps the doctor identity and bearer credential the portal
// forwards to the backend, keyed by an opaque session id.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/portal-api/internal/model"
	"github.com/jwalitptl/portal-api/pkg/logger"
	"github.com/jwalitptl/portal-api/pkg/metrics"
	"github.com/jwalitptl/portal-api/pkg/validator"

	apperrors "github.com/jwalitptl/portal-api/pkg/errors"
)

const DefaultTTL = 12 * time.Hour

// ErrNotFound is returned by stores for unknown or expired sessions.
var ErrNotFound = errors.New("session not found")

// Store persists sessions until they expire.
type Store interface {
	Save(ctx context.Context, s model.Session, ttl time.Duration) error
	Get(ctx context.Context, id string) (model.Session, error)
	Delete(ctx context.Context, id string) error
}

type Service struct {
	store     Store
	ttl       time.Duration
	validator validator.Validator
	metrics   *metrics.Metrics
	logger    *logger.Logger
	now       func() time.Time
}

func NewService(store Store, ttl time.Duration, m *metrics.Metrics, log *logger.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		store:     store,
		ttl:       ttl,
		validator: validator.New(),
		metrics:   m,
		logger:    log,
		now:       time.Now,
	}
}

// Start stores the credential handed back by the login endpoint. The session
// lives until the token's own expiry when it carries one, otherwise for the
// configured TTL.
func (s *Service) Start(ctx context.Context, req model.CreateSessionRequest) (model.Session, error) {
	if err := s.validator.Validate(req); err != nil {
		return model.Session{}, apperrors.BadRequest(err.Error(), err)
	}

	now := s.now().UTC()
	expiresAt := now.Add(s.ttl)
	if exp, ok := TokenExpiry(req.Token); ok {
		if !exp.After(now) {
			return model.Session{}, apperrors.BadRequest("token has expired", nil)
		}
		expiresAt = exp
	}

	user := req.User
	if user.Role == "" {
		user.Role = req.Role
	}

	sess := model.Session{
		ID:        uuid.New().String(),
		DoctorID:  strings.TrimSpace(user.ID.String()),
		Token:     req.Token,
		User:      user,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}

	if err := s.store.Save(ctx, sess, expiresAt.Sub(now)); err != nil {
		s.observe("start", "error")
		return model.Session{}, fmt.Errorf("failed to save session: %w", err)
	}
	s.observe("start", "ok")
	s.logger.Info("session started", "session_id", sess.ID, "doctor_id", sess.DoctorID)
	return sess, nil
}

// Resolve returns the stored session, or an empty one when the id is unknown
// or expired. An empty session makes downstream loads fail with
// MissingSession rather than erroring here.
func (s *Service) Resolve(ctx context.Context, id string) model.Session {
	if id == "" {
		return model.Session{}
	}
	sess, err := s.store.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Error(err, "failed to read session", "session_id", id)
			s.observe("resolve", "error")
		} else {
			s.observe("resolve", "miss")
		}
		return model.Session{}
	}
	if !sess.ExpiresAt.IsZero() && !sess.ExpiresAt.After(s.now()) {
		s.observe("resolve", "expired")
		return model.Session{}
	}
	s.observe("resolve", "ok")
	return sess
}

// End removes the session. Ending an unknown session is not an error.
func (s *Service) End(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		s.observe("end", "error")
		return fmt.Errorf("failed to delete session: %w", err)
	}
	s.observe("end", "ok")
	return nil
}

func (s *Service) observe(op, status string) {
	if s.metrics != nil {
		s.metrics.SessionOperations.WithLabelValues(op, status).Inc()
	}
}
