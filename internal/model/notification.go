package model

import (
	"time"

	"github.com/google/uuid"
)

type NotificationVariant string

const (
	NotificationVariantDefault     NotificationVariant = "default"
	NotificationVariantDestructive NotificationVariant = "destructive"
)

// Notification is a transient message for the viewer, shown as a toast.
type Notification struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Variant     NotificationVariant `json:"variant"`
}

// NotificationEvent is what gets fanned out over the broker so that other
// open views of the same doctor can show the toast too.
type NotificationEvent struct {
	ID            uuid.UUID    `json:"id"`
	DoctorID      string       `json:"doctor_id"`
	AppointmentID int64        `json:"appointment_id"`
	Type          string       `json:"type"`
	Notification  Notification `json:"notification"`
	CreatedAt     time.Time    `json:"created_at"`
}
