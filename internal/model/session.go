package model

import (
	"strings"
	"time"
)

// SessionUser mirrors the user object the login endpoint hands back.
type SessionUser struct {
	ID    FlexString `json:"id" validate:"required"`
	Name  string     `json:"name,omitempty"`
	Email string     `json:"email,omitempty"`
	Role  string     `json:"role,omitempty"`
}

// Session carries the doctor identity and bearer credential used for backend
// calls. It is passed explicitly to whatever needs it.
type Session struct {
	ID        string      `json:"id"`
	DoctorID  string      `json:"doctor_id"`
	Token     string      `json:"token"`
	User      SessionUser `json:"user"`
	ExpiresAt time.Time   `json:"expires_at,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Complete reports whether both the doctor id and the credential are present.
func (s Session) Complete() bool {
	return strings.TrimSpace(s.DoctorID) != "" && strings.TrimSpace(s.Token) != ""
}

type CreateSessionRequest struct {
	Token string      `json:"token" validate:"required"`
	User  SessionUser `json:"user" validate:"required"`
	Role  string      `json:"role,omitempty"`
}
