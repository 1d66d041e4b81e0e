package appointment

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/portal-api/internal/backend"
	"github.com/jwalitptl/portal-api/internal/model"
	"github.com/jwalitptl/portal-api/pkg/errors"
)

type statusUpdate struct {
	token  string
	id     int64
	status model.AppointmentStatus
}

type fakeAPI struct {
	mu        sync.Mutex
	list      []model.Appointment
	listErr   error
	updateErr error

	listCalls int
	updates   []statusUpdate

	// When set, calls signal started and then wait for release.
	started chan struct{}
	release chan struct{}
}

func (f *fakeAPI) wait() {
	if f.release == nil {
		return
	}
	f.started <- struct{}{}
	<-f.release
}

func (f *fakeAPI) ListDoctorAppointments(ctx context.Context, token, doctorID string) ([]model.Appointment, error) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()
	f.wait()

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.Appointment, len(f.list))
	copy(out, f.list)
	return out, nil
}

func (f *fakeAPI) UpdateAppointmentStatus(ctx context.Context, token string, id int64, status model.AppointmentStatus) error {
	f.wait()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, statusUpdate{token: token, id: id, status: status})
	return f.updateErr
}

func (f *fakeAPI) listCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func (f *fakeAPI) updateCalls() []statusUpdate {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]statusUpdate(nil), f.updates...)
}

func blockingAPI() *fakeAPI {
	return &fakeAPI{started: make(chan struct{}, 1), release: make(chan struct{})}
}

type mockAuditor struct {
	mock.Mock
}

func (m *mockAuditor) RecordTransition(ctx context.Context, entry *model.TransitionAudit) error {
	return m.Called(ctx, entry).Error(0)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []*model.NotificationEvent
}

func (r *recordingNotifier) Notify(ctx context.Context, event *model.NotificationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

var testSession = model.Session{ID: "sess-1", DoctorID: "42", Token: "tok"}

func dashboardList() []model.Appointment {
	return []model.Appointment{
		{ID: 1, Status: "PENDING", Patient: &model.PatientRef{ID: int64p(100), Name: "Asha Rao"}, AppointmentDate: "2024-05-01T10:30:00Z"},
		{ID: 2, Status: "PENDING", Patient: &model.PatientRef{ID: int64p(200), Name: "Ben Ode"}},
		{ID: 3, Status: "COMPLETED", Patient: &model.PatientRef{ID: int64p(300), Name: "Cy Tan"}},
	}
}

func loadedView(t *testing.T, api *fakeAPI, opts ...ViewOption) *ViewModel {
	t.Helper()
	vm := NewViewModel(testSession, api, opts...)
	require.NoError(t, vm.Load(context.Background()))
	return vm
}

func TestLoadMissingSession(t *testing.T) {
	tests := []struct {
		name    string
		session model.Session
		message string
	}{
		{"no doctor", model.Session{Token: "tok"}, "Missing doctor info. Please login again."},
		{"no token", model.Session{DoctorID: "42"}, "No auth token. Please login again."},
		{"empty", model.Session{}, "Missing doctor info. Please login again."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{}
			vm := NewViewModel(tt.session, api)

			err := vm.Load(context.Background())

			require.Error(t, err)
			assert.True(t, errors.IsMissingSession(err))
			assert.Equal(t, tt.message, vm.Err())
			assert.False(t, vm.Loading())
			assert.Zero(t, api.listCallCount())
		})
	}
}

func TestLoadSuccess(t *testing.T) {
	api := &fakeAPI{list: dashboardList()}
	vm := loadedView(t, api)

	assert.False(t, vm.Loading())
	assert.Empty(t, vm.Err())

	b := vm.Buckets()
	assert.Equal(t, []int64{1, 2}, ids(b.Pending))
	assert.Equal(t, []int64{3}, ids(b.Completed))
	assert.Len(t, b.All, 3)
}

func TestLoadEmptyBodyYieldsEmptyBuckets(t *testing.T) {
	api := &fakeAPI{list: backend.DecodeAppointments([]byte(`{"error": "nope"}`))}
	vm := loadedView(t, api)

	snap := vm.Snapshot()
	assert.Empty(t, snap.Error)
	assert.Empty(t, snap.Buckets.All)
	assert.Equal(t, "No Appointments", snap.Tabs[len(snap.Tabs)-1].Caption)
}

func TestLoadFailureMessages(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{"server text", &backend.StatusError{StatusCode: 500, Message: "database unavailable"}, "database unavailable"},
		{"empty body", &backend.StatusError{StatusCode: 404}, "Failed to load appointments (404)"},
		{"transport", stderrors.New("dial tcp 10.0.0.1:80: connect: connection refused"), "dial tcp 10.0.0.1:80: connect: connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vm := NewViewModel(testSession, &fakeAPI{listErr: tt.err})

			err := vm.Load(context.Background())

			require.Error(t, err)
			assert.True(t, errors.IsFetchFailed(err))
			assert.Equal(t, tt.message, vm.Err())
			assert.Equal(t, tt.message, errors.MessageOf(err))
			assert.False(t, vm.Loading())
			assert.Empty(t, vm.Buckets().All)
		})
	}
}

func TestLoadRunsOnce(t *testing.T) {
	api := &fakeAPI{list: dashboardList()}
	vm := loadedView(t, api)

	assert.ErrorIs(t, vm.Load(context.Background()), ErrAlreadyLoaded)
	assert.Equal(t, 1, api.listCallCount())
}

func TestLoadingWhileRequestInFlight(t *testing.T) {
	api := blockingAPI()
	api.list = dashboardList()
	vm := NewViewModel(testSession, api)

	done := make(chan error, 1)
	go func() { done <- vm.Load(context.Background()) }()

	<-api.started
	assert.True(t, vm.Loading())
	close(api.release)

	require.NoError(t, <-done)
	assert.False(t, vm.Loading())
	assert.Len(t, vm.Appointments(), 3)
}

func TestCloseDropsLateLoadResponse(t *testing.T) {
	api := blockingAPI()
	api.list = dashboardList()
	vm := NewViewModel(testSession, api)

	done := make(chan error, 1)
	go func() { done <- vm.Load(context.Background()) }()

	<-api.started
	vm.Close()
	close(api.release)

	assert.ErrorIs(t, <-done, ErrViewClosed)
	assert.Empty(t, vm.Appointments())
	assert.False(t, vm.Loading())
	assert.True(t, vm.Closed())
}

func TestRequestTransitionSuccess(t *testing.T) {
	api := &fakeAPI{list: dashboardList()}
	auditor := &mockAuditor{}
	auditor.On("RecordTransition", mock.Anything, mock.MatchedBy(func(e *model.TransitionAudit) bool {
		return e.AppointmentID == 1 && e.FromStatus == "PENDING" && e.ToStatus == "APPROVED" &&
			e.Outcome == model.AuditOutcomeSucceeded && e.DoctorID == "42" && e.RequestID == "req-9"
	})).Return(nil).Once()
	notifier := &recordingNotifier{}
	vm := loadedView(t, api, WithAuditor(auditor), WithNotifier(notifier))
	before := vm.Buckets()

	ctx := ContextWithRequestID(context.Background(), "req-9")
	n, err := vm.RequestTransition(ctx, 1, "approved", "Asha Rao")

	require.NoError(t, err)
	assert.Equal(t, model.Notification{
		Title:       "Status Updated",
		Description: "Appointment with Asha Rao is now APPROVED.",
		Variant:     model.NotificationVariantDefault,
	}, n)
	assert.Equal(t, []statusUpdate{{token: "tok", id: 1, status: model.AppointmentStatusApproved}}, api.updateCalls())

	list := vm.Appointments()
	assert.Equal(t, "APPROVED", list[0].Status)
	assert.Equal(t, "PENDING", list[1].Status)
	assert.Equal(t, "COMPLETED", list[2].Status)

	after := vm.Buckets()
	assert.Equal(t, []int64{1, 2}, ids(before.Pending))
	assert.Equal(t, []int64{2}, ids(after.Pending))
	assert.Equal(t, []int64{1}, ids(after.Approved))
	assert.Equal(t, model.RowActions{Complete: true}, after.Approved[0].Actions)

	auditor.AssertExpectations(t)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, "42", notifier.events[0].DoctorID)
	assert.Equal(t, n, notifier.events[0].Notification)
}

func TestRequestTransitionBackendFailure(t *testing.T) {
	api := &fakeAPI{list: dashboardList(), updateErr: &backend.StatusError{StatusCode: 500}}
	auditor := &mockAuditor{}
	auditor.On("RecordTransition", mock.Anything, mock.MatchedBy(func(e *model.TransitionAudit) bool {
		return e.Outcome == model.AuditOutcomeFailed && e.Error != ""
	})).Return(stderrors.New("audit db down")).Once()
	vm := loadedView(t, api, WithAuditor(auditor))

	n, err := vm.RequestTransition(context.Background(), 1, "APPROVED", "Asha Rao")

	require.Error(t, err)
	assert.True(t, errors.IsTransitionFailed(err))
	assert.Equal(t, model.NotificationVariantDestructive, n.Variant)
	assert.Equal(t, "Failed to update appointment status for Asha Rao to APPROVED.", n.Description)
	assert.Equal(t, dashboardList(), vm.Appointments())
	auditor.AssertExpectations(t)
}

func TestRequestTransitionRefusedLocally(t *testing.T) {
	tests := []struct {
		name   string
		id     int64
		target string
	}{
		{"completed row", 3, "APPROVED"},
		{"pending straight to completed", 1, "COMPLETED"},
		{"unknown appointment", 99, "APPROVED"},
		{"pending is not a target", 1, "PENDING"},
		{"made up status", 1, "ARCHIVED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{list: dashboardList()}
			vm := loadedView(t, api)

			n, err := vm.RequestTransition(context.Background(), tt.id, tt.target, "")

			require.Error(t, err)
			assert.True(t, errors.IsTransitionFailed(err))
			assert.Equal(t, model.NotificationVariantDestructive, n.Variant)
			assert.Empty(t, api.updateCalls())
			assert.Equal(t, dashboardList(), vm.Appointments())
		})
	}
}

func TestRequestTransitionFallsBackToRowName(t *testing.T) {
	api := &fakeAPI{list: dashboardList()}
	vm := loadedView(t, api)

	n, err := vm.RequestTransition(context.Background(), 2, "REJECTED", "")

	require.NoError(t, err)
	assert.Equal(t, "Appointment with Ben Ode is now REJECTED.", n.Description)
}

func TestRequestTransitionWithoutSession(t *testing.T) {
	api := &fakeAPI{}
	vm := NewViewModel(model.Session{DoctorID: "42"}, api)

	_, err := vm.RequestTransition(context.Background(), 1, "APPROVED", "Asha")

	assert.True(t, errors.IsMissingSession(err))
	assert.Empty(t, api.updateCalls())
}

func TestCloseDropsLateTransitionAck(t *testing.T) {
	api := &fakeAPI{list: dashboardList()}
	vm := loadedView(t, api)
	api.started = make(chan struct{}, 1)
	api.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := vm.RequestTransition(context.Background(), 1, "APPROVED", "Asha Rao")
		done <- err
	}()

	<-api.started
	vm.Close()
	close(api.release)

	assert.ErrorIs(t, <-done, ErrViewClosed)
	assert.Empty(t, vm.Appointments())
}

func TestRequestTransitionRejectsDuplicateInFlight(t *testing.T) {
	api := &fakeAPI{list: dashboardList()}
	vm := loadedView(t, api)
	api.started = make(chan struct{}, 1)
	api.release = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := vm.RequestTransition(context.Background(), 1, "APPROVED", "Asha Rao")
		done <- err
	}()
	<-api.started

	_, err := vm.RequestTransition(context.Background(), 1, "REJECTED", "Asha Rao")
	assert.True(t, errors.IsTransitionFailed(err))

	close(api.release)
	require.NoError(t, <-done)
	assert.Equal(t, "APPROVED", vm.Appointments()[0].Status)
}

func TestConcurrentReadsDuringTransitions(t *testing.T) {
	api := &fakeAPI{list: dashboardList()}
	vm := loadedView(t, api)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			deadline := time.Now().Add(20 * time.Millisecond)
			for time.Now().Before(deadline) {
				snap := vm.Snapshot()
				assert.Len(t, snap.Buckets.All, 3)
			}
		}()
	}
	_, err1 := vm.RequestTransition(context.Background(), 1, "APPROVED", "")
	_, err2 := vm.RequestTransition(context.Background(), 2, "REJECTED", "")
	wg.Wait()

	require.NoError(t, err1)
	require.NoError(t, err2)
	b := vm.Buckets()
	assert.Empty(t, b.Pending)
	assert.Len(t, b.Approved, 1)
	assert.Len(t, b.Rejected, 1)
}
