package appointment

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/portal-api/internal/backend"
	"github.com/jwalitptl/portal-api/internal/model"
	"github.com/jwalitptl/portal-api/pkg/errors"
	"github.com/jwalitptl/portal-api/pkg/logger"
	"github.com/jwalitptl/portal-api/pkg/metrics"
)

const (
	DefaultViewTTL     = 30 * time.Minute
	defaultViewCleanup = 5 * time.Minute
)

// Config holds the appointment service settings.
type Config struct {
	Locale            string
	Timezone          string
	UnknownStatusMode UnknownStatusMode
	ViewTTL           time.Duration
}

// Service keeps the activated appointment views. Each activation triggers
// exactly one load; a view lives until it is deactivated, its session is
// closed or it sits idle for ViewTTL.
type Service struct {
	api       backend.AppointmentAPI
	formatter *Formatter
	mode      UnknownStatusMode
	views     *cache.Cache
	auditor   Auditor
	notifier  Notifier
	metrics   *metrics.Metrics
	logger    *logger.Logger
}

// NewService builds the service. auditor, notifier and m may be nil.
func NewService(cfg Config, api backend.AppointmentAPI, auditor Auditor, notifier Notifier, m *metrics.Metrics, log *logger.Logger) (*Service, error) {
	f, err := NewFormatter(cfg.Locale, cfg.Timezone)
	if err != nil {
		return nil, err
	}
	if cfg.UnknownStatusMode == "" {
		cfg.UnknownStatusMode = UnknownAsPending
	}
	if cfg.ViewTTL <= 0 {
		cfg.ViewTTL = DefaultViewTTL
	}
	if log == nil {
		log = logger.Nop()
	}

	s := &Service{
		api:       api,
		formatter: f,
		mode:      cfg.UnknownStatusMode,
		views:     cache.New(cfg.ViewTTL, defaultViewCleanup),
		auditor:   auditor,
		notifier:  notifier,
		metrics:   m,
		logger:    log,
	}
	s.views.OnEvicted(func(_ string, v interface{}) {
		if vm, ok := v.(*ViewModel); ok {
			vm.Close()
		}
		if s.metrics != nil {
			s.metrics.ActiveViews.Dec()
		}
	})
	return s, nil
}

func (s *Service) Formatter() *Formatter {
	return s.formatter
}

// Activate creates a view for the session and loads it. The view is returned
// together with the load error so the caller can show the failure inline. A
// view whose session is incomplete is never registered.
func (s *Service) Activate(ctx context.Context, session model.Session) (*ViewModel, error) {
	vm := NewViewModel(session, s.api,
		WithFormatter(s.formatter),
		WithUnknownStatusMode(s.mode),
		WithAuditor(s.auditor),
		WithNotifier(s.notifier),
		WithViewMetrics(s.metrics),
		WithViewLogger(s.logger),
	)

	if !session.Complete() {
		return vm, vm.Load(ctx)
	}

	s.views.SetDefault(vm.ID(), vm)
	if s.metrics != nil {
		s.metrics.ActiveViews.Inc()
	}
	s.logger.Debug("appointment view activated", "view_id", vm.ID(), "doctor_id", session.DoctorID)

	return vm, vm.Load(ctx)
}

// View looks up an active view owned by the session and refreshes its idle
// timer.
func (s *Service) View(viewID string, session model.Session) (*ViewModel, error) {
	v, ok := s.views.Get(viewID)
	if !ok {
		return nil, errors.NotFound("appointment view", nil)
	}
	vm := v.(*ViewModel)
	if vm.SessionID() != session.ID {
		return nil, errors.NotFound("appointment view", nil)
	}
	s.views.SetDefault(viewID, vm)
	return vm, nil
}

// Deactivate tears a view down. In-flight responses for it are dropped.
func (s *Service) Deactivate(viewID string, session model.Session) error {
	if _, err := s.View(viewID, session); err != nil {
		return err
	}
	s.views.Delete(viewID)
	return nil
}

// CloseSession tears down every view opened under the session.
func (s *Service) CloseSession(sessionID string) int {
	closed := 0
	for id, item := range s.views.Items() {
		if vm, ok := item.Object.(*ViewModel); ok && vm.SessionID() == sessionID {
			s.views.Delete(id)
			closed++
		}
	}
	return closed
}

// ActiveViews reports how many views are registered.
func (s *Service) ActiveViews() int {
	return s.views.ItemCount()
}

// Shutdown tears down all views.
func (s *Service) Shutdown() {
	for id := range s.views.Items() {
		s.views.Delete(id)
	}
}
