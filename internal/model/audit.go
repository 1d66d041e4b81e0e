package model

import (
	"time"

	"github.com/google/uuid"
)

// TransitionAudit records one status change attempt made through the portal.
type TransitionAudit struct {
	ID            uuid.UUID `json:"id" db:"id"`
	DoctorID      string    `json:"doctor_id" db:"doctor_id"`
	AppointmentID int64     `json:"appointment_id" db:"appointment_id"`
	FromStatus    string    `json:"from_status" db:"from_status"`
	ToStatus      string    `json:"to_status" db:"to_status"`
	Outcome       string    `json:"outcome" db:"outcome"`
	Error         string    `json:"error,omitempty" db:"error"`
	RequestID     string    `json:"request_id,omitempty" db:"request_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

const (
	AuditOutcomeSucceeded = "succeeded"
	AuditOutcomeFailed    = "failed"
	AuditOutcomeRejected  = "rejected"
)

// AuditFilters narrows a transition audit listing.
type AuditFilters struct {
	DoctorID      string
	AppointmentID int64
	Since         time.Time
	Limit         int
}
