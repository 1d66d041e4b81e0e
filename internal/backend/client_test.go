package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/portal-api/internal/model"
	"github.com/jwalitptl/portal-api/pkg/circuitbreaker"
)

func newTestClient(t *testing.T, h http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func TestListDoctorAppointments(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/appointments/doctor/42", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"id": 1, "status": "pending", "patient": {"id": 7, "name": "Asha", "age": 34}},
			{"id": 2, "status": "APPROVED", "appointmentDate": "2024-05-01T10:30:00Z"}
		]`))
	})

	list, err := c.ListDoctorAppointments(context.Background(), "tok", "42")

	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(1), list[0].ID)
	assert.Equal(t, model.FlexString("34"), list[0].Patient.Age)
	assert.Equal(t, model.AppointmentStatusPending, list[0].NormalizedStatus())
	assert.Nil(t, list[1].Patient)
}

func TestListDoctorAppointmentsStatusError(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		body    string
		message string
	}{
		{"with body", http.StatusInternalServerError, "  database unavailable\n", "database unavailable"},
		{"empty body", http.StatusNotFound, "", ""},
		{"unauthorized", http.StatusUnauthorized, "token expired", "token expired"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.ListDoctorAppointments(context.Background(), "tok", "42")

			var se *StatusError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.code, se.StatusCode)
			assert.Equal(t, tt.message, se.Message)
		})
	}
}

func TestUpdateAppointmentStatus(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/appointments/17/status", r.URL.Path)
		assert.Equal(t, "APPROVED", r.URL.Query().Get("status"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusNoContent)
	})

	err := c.UpdateAppointmentStatus(context.Background(), "tok", 17, model.AppointmentStatusApproved)

	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUpdateAppointmentStatusRefused(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	})

	err := c.UpdateAppointmentStatus(context.Background(), "tok", 17, model.AppointmentStatusCompleted)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusConflict, se.StatusCode)
}

func TestClientTimeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, WithTimeout(20*time.Millisecond))
	defer close(release)

	_, err := c.ListDoctorAppointments(context.Background(), "tok", "42")

	require.Error(t, err)
	var se *StatusError
	assert.False(t, errors.As(err, &se))
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	settings := BreakerSettings("backend-test", nil)
	settings.FailureThreshold = 2
	cb := circuitbreaker.NewCircuitBreaker(settings)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, WithBreaker(cb))

	for i := 0; i < 2; i++ {
		_, err := c.ListDoctorAppointments(context.Background(), "tok", "42")
		require.Error(t, err)
	}
	_, err := c.ListDoctorAppointments(context.Background(), "tok", "42")

	assert.ErrorIs(t, err, circuitbreaker.ErrOpen)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, circuitbreaker.StateOpen, cb.State())
}

func TestBreakerIgnoresClientErrors(t *testing.T) {
	settings := BreakerSettings("backend-test", nil)
	settings.FailureThreshold = 1
	cb := circuitbreaker.NewCircuitBreaker(settings)

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}, WithBreaker(cb))

	for i := 0; i < 3; i++ {
		_, err := c.ListDoctorAppointments(context.Background(), "tok", "42")
		var se *StatusError
		require.True(t, errors.As(err, &se))
	}
	assert.Equal(t, circuitbreaker.StateClosed, cb.State())
}

func TestNewClientRejectsBadURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:8080", "://nope"} {
		_, err := NewClient(raw)
		assert.Error(t, err, raw)
	}
}

func TestDecodeAppointments(t *testing.T) {
	tests := []struct {
		name string
		body string
		ids  []int64
	}{
		{"empty", "", nil},
		{"null", "null", nil},
		{"object", `{"message": "no appointments"}`, nil},
		{"broken", `[{"id": 1`, nil},
		{"mixed elements", `[1, "x", null, {"id": 3, "status": "PENDING"}, {"id": "bad"}]`, []int64{3, 0}},
		{"malformed fields", `[{"id":1,"status":"pending"},{"id":2,"patient":{"id":"7","name":"Ann"},"status":"APPROVED"},{"id":3,"status":5},{"id":"4","status":"PENDING"}]`, []int64{1, 2, 3, 4}},
		{"array", `[{"id": 1}, {"id": 2}]`, []int64{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list := DecodeAppointments([]byte(tt.body))

			require.NotNil(t, list)
			var got []int64
			for _, a := range list {
				got = append(got, a.ID)
			}
			assert.Equal(t, tt.ids, got)
		})
	}
}

func TestDecodeAppointmentsKeepsMalformedFields(t *testing.T) {
	list := DecodeAppointments([]byte(`[
		{"id": 2, "patient": {"id": "7", "name": 12, "gender": ["x"]}, "status": "APPROVED", "reason": 3},
		{"id": 3, "patient": "Ann", "status": 5}
	]`))

	require.Len(t, list, 2)
	require.NotNil(t, list[0].Patient)
	require.NotNil(t, list[0].Patient.ID)
	assert.Equal(t, int64(7), *list[0].Patient.ID)
	assert.Equal(t, "12", list[0].Patient.Name)
	assert.Empty(t, list[0].Patient.Gender)
	assert.Equal(t, "3", list[0].Reason)
	assert.Equal(t, model.AppointmentStatusApproved, list[0].NormalizedStatus())

	assert.Nil(t, list[1].Patient)
	assert.False(t, list[1].NormalizedStatus().IsKnown())
}

func TestListDoctorAppointmentsBodyTooLarge(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"id": 1}, {"id": 2}, {"id": 3}]`))
	})
	c.maxBody = 16

	list, err := c.ListDoctorAppointments(context.Background(), "tok", "42")

	assert.ErrorIs(t, err, ErrBodyTooLarge)
	assert.Nil(t, list)
}
