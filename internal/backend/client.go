// Package backend is the HTTP client for the healthcare REST backend that owns
// appointment state. It only moves bytes and status codes; mapping failures to
// portal errors is left to the callers.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jwalitptl/portal-api/internal/model"
	"github.com/jwalitptl/portal-api/pkg/circuitbreaker"
	"github.com/jwalitptl/portal-api/pkg/logger"
	"github.com/jwalitptl/portal-api/pkg/metrics"
)

const (
	DefaultTimeout = 10 * time.Second
	maxBodyBytes   = 8 << 20

	opListDoctorAppointments = "list_doctor_appointments"
	opUpdateStatus           = "update_status"
)

// ErrBodyTooLarge is returned when a response exceeds the read limit. The
// body is discarded rather than decoded from a truncated prefix.
var ErrBodyTooLarge = errors.New("backend response exceeds the size limit")

// StatusError is returned when the backend answers with a non-2xx status.
// Message holds the response body text, which may be empty.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend returned %d", e.StatusCode)
}

// AppointmentAPI is the slice of the backend the appointment view needs.
type AppointmentAPI interface {
	ListDoctorAppointments(ctx context.Context, token, doctorID string) ([]model.Appointment, error)
	UpdateAppointmentStatus(ctx context.Context, token string, appointmentID int64, status model.AppointmentStatus) error
}

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	timeout    time.Duration
	maxBody    int64
	breaker    *circuitbreaker.CircuitBreaker
	metrics    *metrics.Metrics
	logger     *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithTimeout sets the per-call deadline.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

func WithBreaker(cb *circuitbreaker.CircuitBreaker) Option {
	return func(cl *Client) { cl.breaker = cb }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) { cl.metrics = m }
}

func WithLogger(l *logger.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// NewClient creates a client for the backend rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid backend URL %q: scheme and host are required", baseURL)
	}

	c := &Client{
		baseURL: u,
		timeout: DefaultTimeout,
		maxBody: maxBodyBytes,
		logger:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c, nil
}

// BreakerSettings returns breaker settings that only count transport errors
// and 5xx answers as failures.
func BreakerSettings(name string, m *metrics.Metrics) circuitbreaker.Settings {
	return circuitbreaker.Settings{
		Name:             name,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		IsSuccessful: func(err error) bool {
			var se *StatusError
			if errors.As(err, &se) {
				return se.StatusCode < http.StatusInternalServerError
			}
			return err == nil
		},
		OnStateChange: func(name string, _, to circuitbreaker.State) {
			if m != nil {
				m.BreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	}
}

// ListDoctorAppointments fetches GET /api/appointments/doctor/{doctorID}.
// An empty, null or non-array body yields an empty list.
func (c *Client) ListDoctorAppointments(ctx context.Context, token, doctorID string) ([]model.Appointment, error) {
	path := "/api/appointments/doctor/" + url.PathEscape(doctorID)

	var body []byte
	err := c.call(ctx, opListDoctorAppointments, http.MethodGet, path, nil, token, func(b []byte) {
		body = b
	})
	if err != nil {
		return nil, err
	}

	appointments := DecodeAppointments(body)
	c.logger.Debug("loaded doctor appointments", "doctor_id", doctorID, "count", len(appointments))
	return appointments, nil
}

// UpdateAppointmentStatus sends PUT /api/appointments/{id}/status?status=X.
// Any 2xx counts as acknowledgement; the body is ignored.
func (c *Client) UpdateAppointmentStatus(ctx context.Context, token string, appointmentID int64, status model.AppointmentStatus) error {
	q := url.Values{}
	q.Set("status", string(status))
	path := "/api/appointments/" + strconv.FormatInt(appointmentID, 10) + "/status"

	return c.call(ctx, opUpdateStatus, http.MethodPut, path, q, token, nil)
}

func (c *Client) call(ctx context.Context, op, method, path string, query url.Values, token string, onBody func([]byte)) error {
	start := time.Now()
	status := "error"
	defer func() {
		if c.metrics != nil {
			c.metrics.BackendRequests.WithLabelValues(op, status).Inc()
			c.metrics.BackendLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
		}
	}()

	run := func() error {
		body, code, err := c.do(ctx, method, path, query, token)
		if err != nil {
			return err
		}
		status = strconv.Itoa(code)
		if code < 200 || code > 299 {
			return &StatusError{StatusCode: code, Message: strings.TrimSpace(string(body))}
		}
		if onBody != nil {
			onBody(body)
		}
		return nil
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(run)
		if errors.Is(err, circuitbreaker.ErrOpen) {
			status = "breaker_open"
		}
	} else {
		err = run()
	}
	if err != nil {
		c.logger.Error(err, "backend request failed", "operation", op, "path", path)
	}
	return err
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, token string) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	if int64(len(body)) > c.maxBody {
		return nil, resp.StatusCode, ErrBodyTooLarge
	}
	return body, resp.StatusCode, nil
}

// DecodeAppointments parses a list response leniently. Anything that is not a
// JSON array decodes to an empty list. Array elements that are not objects are
// skipped; every object yields one appointment, with malformed fields left
// empty.
func DecodeAppointments(body []byte) []model.Appointment {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return []model.Appointment{}
	}

	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return []model.Appointment{}
	}

	appointments := make([]model.Appointment, 0, len(items))
	for _, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) == 0 || item[0] != '{' {
			continue
		}
		var a model.Appointment
		if err := json.Unmarshal(item, &a); err != nil {
			continue
		}
		appointments = append(appointments, a)
	}
	return appointments
}
