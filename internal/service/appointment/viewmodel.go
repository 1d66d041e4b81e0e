package appointment

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/portal-api/internal/backend"
	"github.com/jwalitptl/portal-api/internal/model"
	"github.com/jwalitptl/portal-api/pkg/errors"
	"github.com/jwalitptl/portal-api/pkg/logger"
	"github.com/jwalitptl/portal-api/pkg/metrics"
)

var (
	// ErrViewClosed is returned when a response arrives after teardown. The
	// response has been dropped.
	ErrViewClosed = stderrors.New("appointment view closed")
	// ErrAlreadyLoaded is returned by a second Load on the same view.
	ErrAlreadyLoaded = stderrors.New("appointment view already loaded")
)

const (
	msgMissingDoctor = "Missing doctor info. Please login again."
	msgMissingToken  = "No auth token. Please login again."
	msgLoadFailed    = "Failed to load appointments"
)

// Auditor records status change attempts.
type Auditor interface {
	RecordTransition(ctx context.Context, entry *model.TransitionAudit) error
}

// Notifier fans a notification out to other listeners of the same doctor.
type Notifier interface {
	Notify(ctx context.Context, event *model.NotificationEvent) error
}

// Snapshot is the read-only state handed to the rendering layer.
type Snapshot struct {
	ViewID  string        `json:"view_id"`
	Loading bool          `json:"loading"`
	Error   string        `json:"error,omitempty"`
	Tabs    []model.Tab   `json:"tabs"`
	Buckets model.Buckets `json:"buckets"`
}

// ViewModel holds one activation of a doctor's appointment view: the raw list
// fetched from the backend, the derived buckets and the load state. It is safe
// for concurrent use; backend calls run outside the lock.
type ViewModel struct {
	id        string
	session   model.Session
	api       backend.AppointmentAPI
	formatter *Formatter
	mode      UnknownStatusMode
	auditor   Auditor
	notifier  Notifier
	metrics   *metrics.Metrics
	logger    *logger.Logger

	mu           sync.Mutex
	appointments []model.Appointment
	revision     uint64
	buckets      *model.Buckets
	bucketsRev   uint64
	loading      bool
	loadStarted  bool
	errMsg       string
	generation   uint64
	closed       bool
	inFlight     map[int64]bool
}

// ViewOption configures a ViewModel.
type ViewOption func(*ViewModel)

func WithFormatter(f *Formatter) ViewOption {
	return func(v *ViewModel) {
		if f != nil {
			v.formatter = f
		}
	}
}

func WithUnknownStatusMode(mode UnknownStatusMode) ViewOption {
	return func(v *ViewModel) { v.mode = mode }
}

func WithAuditor(a Auditor) ViewOption {
	return func(v *ViewModel) { v.auditor = a }
}

func WithNotifier(n Notifier) ViewOption {
	return func(v *ViewModel) { v.notifier = n }
}

func WithViewMetrics(m *metrics.Metrics) ViewOption {
	return func(v *ViewModel) { v.metrics = m }
}

func WithViewLogger(l *logger.Logger) ViewOption {
	return func(v *ViewModel) {
		if l != nil {
			v.logger = l
		}
	}
}

// NewViewModel creates an unloaded view for the given session.
func NewViewModel(session model.Session, api backend.AppointmentAPI, opts ...ViewOption) *ViewModel {
	v := &ViewModel{
		id:        uuid.New().String(),
		session:   session,
		api:       api,
		formatter: DefaultFormatter(),
		mode:      UnknownAsPending,
		logger:    logger.Nop(),
		inFlight:  make(map[int64]bool),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *ViewModel) ID() string {
	return v.id
}

func (v *ViewModel) SessionID() string {
	return v.session.ID
}

// Load fetches the doctor's appointments once. A missing doctor id or token
// fails with MissingSession before any request is made.
func (v *ViewModel) Load(ctx context.Context) error {
	if err := v.checkSession(); err != nil {
		v.mu.Lock()
		v.errMsg = errors.MessageOf(err)
		v.mu.Unlock()
		v.observeLoad("missing_session")
		return err
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return ErrViewClosed
	}
	if v.loadStarted {
		v.mu.Unlock()
		return ErrAlreadyLoaded
	}
	v.loadStarted = true
	v.loading = true
	v.errMsg = ""
	gen := v.generation
	v.mu.Unlock()

	list, err := v.api.ListDoctorAppointments(ctx, v.session.Token, v.session.DoctorID)

	v.mu.Lock()
	defer v.mu.Unlock()

	if gen != v.generation {
		v.observeStale()
		return ErrViewClosed
	}
	v.loading = false

	if err != nil {
		appErr := loadError(err)
		v.errMsg = appErr.Message
		v.observeLoad("failed")
		v.logger.Error(err, "failed to load doctor appointments", "doctor_id", v.session.DoctorID, "view_id", v.id)
		return appErr
	}

	v.appointments = list
	v.revision++
	v.observeLoad("succeeded")
	if n := countUnknown(list); n > 0 && v.metrics != nil {
		v.metrics.UnknownStatusRows.Add(float64(n))
	}
	return nil
}

func (v *ViewModel) checkSession() error {
	if strings.TrimSpace(v.session.DoctorID) == "" {
		return errors.MissingSession(msgMissingDoctor)
	}
	if strings.TrimSpace(v.session.Token) == "" {
		return errors.MissingSession(msgMissingToken)
	}
	return nil
}

func loadError(err error) *errors.AppError {
	var se *backend.StatusError
	if stderrors.As(err, &se) {
		msg := se.Message
		if msg == "" {
			msg = fmt.Sprintf("%s (%d)", msgLoadFailed, se.StatusCode)
		}
		return errors.FetchFailed(msg, err)
	}
	msg := err.Error()
	if msg == "" {
		msg = msgLoadFailed
	}
	return errors.FetchFailed(msg, err)
}

// Loading reports whether the load request is in flight.
func (v *ViewModel) Loading() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loading
}

// Err returns the message of the last load failure, or "".
func (v *ViewModel) Err() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.errMsg
}

// Appointments returns a copy of the raw list.
func (v *ViewModel) Appointments() []model.Appointment {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]model.Appointment, len(v.appointments))
	copy(out, v.appointments)
	return out
}

// Buckets returns the categorized rows, recomputing them only when the raw
// list has changed since the last call.
func (v *ViewModel) Buckets() model.Buckets {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.bucketsLocked()
}

func (v *ViewModel) bucketsLocked() model.Buckets {
	if v.buckets == nil || v.bucketsRev != v.revision {
		b := Categorize(v.appointments, v.formatter, v.mode)
		v.buckets = &b
		v.bucketsRev = v.revision
	}
	return *v.buckets
}

// Snapshot returns everything the rendering layer needs in one consistent read.
func (v *ViewModel) Snapshot() Snapshot {
	v.mu.Lock()
	defer v.mu.Unlock()
	b := v.bucketsLocked()
	return Snapshot{
		ViewID:  v.id,
		Loading: v.loading,
		Error:   v.errMsg,
		Tabs:    b.Tabs(),
		Buckets: b,
	}
}

// Patients returns the roster derived from the loaded list, filtered by term.
func (v *ViewModel) Patients(term string) []model.Patient {
	v.mu.Lock()
	roster := BuildRoster(v.appointments, v.formatter)
	v.mu.Unlock()
	return FilterRoster(roster, term)
}

// RequestTransition asks the backend to move one appointment to target. The
// local record is patched only after the backend acknowledges. On failure the
// list is left untouched and the returned notification is destructive.
func (v *ViewModel) RequestTransition(ctx context.Context, appointmentID int64, target, patientName string) (model.Notification, error) {
	to := model.NormalizeStatus(target)

	if !IsTarget(to) {
		err := errors.TransitionFailed(fmt.Sprintf("cannot change appointment status to %s", to), nil)
		return v.failTransition(ctx, appointmentID, "", to, patientName, model.AuditOutcomeRejected, err)
	}
	if err := v.checkSession(); err != nil {
		return v.failTransition(ctx, appointmentID, "", to, patientName, model.AuditOutcomeRejected, err)
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return model.Notification{}, ErrViewClosed
	}
	idx := v.indexLocked(appointmentID)
	if idx < 0 {
		v.mu.Unlock()
		err := errors.TransitionFailed(fmt.Sprintf("appointment %d is not in this view", appointmentID), nil)
		return v.failTransition(ctx, appointmentID, "", to, patientName, model.AuditOutcomeRejected, err)
	}
	current := v.appointments[idx]
	from := current.NormalizedStatus()
	if patientName == "" {
		patientName = Project(current, v.formatter).Patient
	}
	if !CanTransition(from, to) {
		v.mu.Unlock()
		err := errors.TransitionFailed(fmt.Sprintf("cannot change appointment status from %s to %s", from, to), nil)
		return v.failTransition(ctx, appointmentID, from, to, patientName, model.AuditOutcomeRejected, err)
	}
	if v.inFlight[appointmentID] {
		v.mu.Unlock()
		err := errors.TransitionFailed("a status change for this appointment is already in progress", nil)
		return v.failTransition(ctx, appointmentID, from, to, patientName, model.AuditOutcomeRejected, err)
	}
	v.inFlight[appointmentID] = true
	gen := v.generation
	v.mu.Unlock()

	callErr := v.api.UpdateAppointmentStatus(ctx, v.session.Token, appointmentID, to)

	v.mu.Lock()
	delete(v.inFlight, appointmentID)
	if gen != v.generation {
		v.mu.Unlock()
		v.observeStale()
		return model.Notification{}, ErrViewClosed
	}
	if callErr != nil {
		v.mu.Unlock()
		err := errors.TransitionFailed(transitionMessage(callErr), callErr)
		return v.failTransition(ctx, appointmentID, from, to, patientName, model.AuditOutcomeFailed, err)
	}
	if i := v.indexLocked(appointmentID); i >= 0 {
		v.appointments[i] = v.appointments[i].WithStatus(to)
		v.revision++
	}
	v.mu.Unlock()

	n := model.Notification{
		Title:       "Status Updated",
		Description: fmt.Sprintf("Appointment with %s is now %s.", patientName, to),
		Variant:     model.NotificationVariantDefault,
	}
	v.observeTransition(to, "succeeded")
	v.audit(ctx, appointmentID, from, to, model.AuditOutcomeSucceeded, nil)
	v.notify(ctx, appointmentID, "appointment_status_updated", n)
	return n, nil
}

func (v *ViewModel) indexLocked(id int64) int {
	for i := range v.appointments {
		if v.appointments[i].ID == id {
			return i
		}
	}
	return -1
}

func transitionMessage(err error) string {
	var se *backend.StatusError
	if stderrors.As(err, &se) {
		if se.Message != "" {
			return se.Message
		}
		return fmt.Sprintf("Failed to update status (%d %s)", se.StatusCode, http.StatusText(se.StatusCode))
	}
	return err.Error()
}

func (v *ViewModel) failTransition(ctx context.Context, id int64, from, to model.AppointmentStatus, patientName, outcome string, err error) (model.Notification, error) {
	if patientName == "" {
		patientName = model.DefaultPatientName
	}
	n := model.Notification{
		Title:       "Error",
		Description: fmt.Sprintf("Failed to update appointment status for %s to %s.", patientName, to),
		Variant:     model.NotificationVariantDestructive,
	}
	v.observeTransition(to, outcome)
	v.audit(ctx, id, from, to, outcome, err)
	v.logger.Warn("appointment status change failed", "appointment_id", id, "target", string(to), "error", err.Error())
	return n, err
}

func (v *ViewModel) audit(ctx context.Context, id int64, from, to model.AppointmentStatus, outcome string, err error) {
	if v.auditor == nil {
		return
	}
	entry := &model.TransitionAudit{
		ID:            uuid.New(),
		DoctorID:      v.session.DoctorID,
		AppointmentID: id,
		FromStatus:    string(from),
		ToStatus:      string(to),
		Outcome:       outcome,
		RequestID:     RequestIDFromContext(ctx),
		CreatedAt:     time.Now().UTC(),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if aerr := v.auditor.RecordTransition(ctx, entry); aerr != nil {
		v.logger.Error(aerr, "failed to record transition audit", "appointment_id", id)
	}
}

func (v *ViewModel) notify(ctx context.Context, id int64, kind string, n model.Notification) {
	if v.notifier == nil {
		return
	}
	event := &model.NotificationEvent{
		ID:            uuid.New(),
		DoctorID:      v.session.DoctorID,
		AppointmentID: id,
		Type:          kind,
		Notification:  n,
		CreatedAt:     time.Now().UTC(),
	}
	if err := v.notifier.Notify(ctx, event); err != nil {
		v.logger.Error(err, "failed to publish notification", "appointment_id", id)
	}
}

// Close tears the view down. Responses still in flight are dropped when they
// arrive.
func (v *ViewModel) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	v.generation++
	v.loading = false
	v.appointments = nil
	v.buckets = nil
	v.revision++
}

func (v *ViewModel) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

func (v *ViewModel) observeLoad(outcome string) {
	if v.metrics != nil {
		v.metrics.ViewLoads.WithLabelValues(outcome).Inc()
	}
}

func (v *ViewModel) observeTransition(to model.AppointmentStatus, outcome string) {
	if v.metrics != nil {
		v.metrics.Transitions.WithLabelValues(string(to), outcome).Inc()
	}
}

func (v *ViewModel) observeStale() {
	if v.metrics != nil {
		v.metrics.StaleResponses.Inc()
	}
}

type requestIDKey struct{}

// ContextWithRequestID tags ctx so audit entries can be correlated with the
// access log.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id set by ContextWithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
