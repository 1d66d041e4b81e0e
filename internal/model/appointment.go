package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

type AppointmentStatus string

const (
	AppointmentStatusPending   AppointmentStatus = "PENDING"
	AppointmentStatusApproved  AppointmentStatus = "APPROVED"
	AppointmentStatusRejected  AppointmentStatus = "REJECTED"
	AppointmentStatusCompleted AppointmentStatus = "COMPLETED"
)

// IsKnown reports whether s is one of the four statuses the backend issues.
func (s AppointmentStatus) IsKnown() bool {
	switch s {
	case AppointmentStatusPending, AppointmentStatusApproved, AppointmentStatusRejected, AppointmentStatusCompleted:
		return true
	}
	return false
}

// NormalizeStatus upper-cases a raw status. A missing status reads as PENDING.
func NormalizeStatus(raw string) AppointmentStatus {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if s == "" {
		return AppointmentStatusPending
	}
	return AppointmentStatus(s)
}

// FlexString decodes a JSON string, number or boolean into its text form.
// null and absent values decode to "".
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "" || raw == "null" {
		*f = ""
		return nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	if raw[0] == '{' || raw[0] == '[' {
		*f = ""
		return nil
	}
	*f = FlexString(raw)
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

// PatientRef is the patient summary embedded in an appointment record.
type PatientRef struct {
	ID          *int64     `json:"id,omitempty"`
	Name        string     `json:"name,omitempty"`
	Age         FlexString `json:"age,omitempty"`
	Gender      string     `json:"gender,omitempty"`
	PhoneNumber string     `json:"phoneNumber,omitempty"`
	Email       string     `json:"email,omitempty"`
	Location    string     `json:"location,omitempty"`
	Specialty   string     `json:"specialty,omitempty"`
}

// Appointment is the record as the backend returns it. Doctor is kept
// verbatim because the portal never reads it.
type Appointment struct {
	ID              int64           `json:"id"`
	Patient         *PatientRef     `json:"patient,omitempty"`
	Doctor          json.RawMessage `json:"doctor,omitempty"`
	AppointmentDate string          `json:"appointmentDate,omitempty"`
	Reason          string          `json:"reason,omitempty"`
	Status          string          `json:"status"`
}

// Int64 reads the value as an integer. Integral floats such as 7.0 are
// accepted; anything else reports false.
func (f FlexString) Int64() (int64, bool) {
	raw := strings.TrimSpace(string(f))
	if raw == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, true
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil && v == float64(int64(v)) {
		return int64(v), true
	}
	return 0, false
}

type rawPatientRef struct {
	ID          FlexString `json:"id"`
	Name        FlexString `json:"name"`
	Age         FlexString `json:"age"`
	Gender      FlexString `json:"gender"`
	PhoneNumber FlexString `json:"phoneNumber"`
	Email       FlexString `json:"email"`
	Location    FlexString `json:"location"`
	Specialty   FlexString `json:"specialty"`
}

// UnmarshalJSON accepts any scalar for every field. Values of the wrong shape
// decode to their zero value instead of failing the record.
func (p *PatientRef) UnmarshalJSON(data []byte) error {
	var raw rawPatientRef
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = PatientRef{
		Name:        raw.Name.String(),
		Age:         raw.Age,
		Gender:      raw.Gender.String(),
		PhoneNumber: raw.PhoneNumber.String(),
		Email:       raw.Email.String(),
		Location:    raw.Location.String(),
		Specialty:   raw.Specialty.String(),
	}
	if id, ok := raw.ID.Int64(); ok {
		p.ID = &id
	}
	return nil
}

type rawAppointment struct {
	ID              FlexString      `json:"id"`
	Patient         json.RawMessage `json:"patient"`
	Doctor          json.RawMessage `json:"doctor"`
	AppointmentDate FlexString      `json:"appointmentDate"`
	Reason          FlexString      `json:"reason"`
	Status          FlexString      `json:"status"`
}

// UnmarshalJSON decodes a record field by field so one malformed value never
// loses the whole appointment. Only a non-object fails.
func (a *Appointment) UnmarshalJSON(data []byte) error {
	var raw rawAppointment
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, _ := raw.ID.Int64()
	*a = Appointment{
		ID:              id,
		AppointmentDate: raw.AppointmentDate.String(),
		Reason:          raw.Reason.String(),
		Status:          raw.Status.String(),
	}
	if d := bytes.TrimSpace(raw.Doctor); len(d) > 0 && !bytes.Equal(d, []byte("null")) {
		a.Doctor = raw.Doctor
	}
	if p := bytes.TrimSpace(raw.Patient); len(p) > 0 && p[0] == '{' {
		var ref PatientRef
		if err := json.Unmarshal(p, &ref); err == nil {
			a.Patient = &ref
		}
	}
	return nil
}

// NormalizedStatus returns the record's status in canonical form.
func (a Appointment) NormalizedStatus() AppointmentStatus {
	return NormalizeStatus(a.Status)
}

// WithStatus returns a copy of the record carrying the new status.
func (a Appointment) WithStatus(status AppointmentStatus) Appointment {
	a.Status = string(status)
	return a
}

const (
	AppointmentTypeInPerson = "In-Person"
	PlaceholderImage        = "/placeholder.svg"
	DefaultPatientName      = "Patient"
)

// BadgeTone is the colour family used for a status badge.
type BadgeTone string

const (
	BadgeGreen  BadgeTone = "green"
	BadgeYellow BadgeTone = "yellow"
	BadgeRed    BadgeTone = "red"
	BadgeBlue   BadgeTone = "blue"
	BadgeGray   BadgeTone = "gray"
)

// RowActions lists which status actions a row offers. Pending is a display
// only action and is never enabled.
type RowActions struct {
	Pending  bool `json:"pending"`
	Approve  bool `json:"approve"`
	Reject   bool `json:"reject"`
	Complete bool `json:"complete"`
}

// AppointmentRow is the display-ready projection of an Appointment.
type AppointmentRow struct {
	ID       int64             `json:"id"`
	Patient  string            `json:"patient"`
	Initials string            `json:"initials"`
	Age      string            `json:"age"`
	Gender   string            `json:"gender"`
	Date     string            `json:"date"`
	Time     string            `json:"time"`
	Type     string            `json:"type"`
	Reason   string            `json:"reason"`
	Status   AppointmentStatus `json:"status"`
	Badge    BadgeTone         `json:"badge"`
	Image    string            `json:"image"`
	Actions  RowActions        `json:"actions"`
}

// Bucket names used for tabbed display.
const (
	BucketPending   = "pending"
	BucketApproved  = "approved"
	BucketRejected  = "rejected"
	BucketCompleted = "completed"
	BucketOther     = "other"
	BucketAll       = "all"
)

// Buckets groups rows by status. Other is only populated when unknown
// statuses are kept apart from pending.
type Buckets struct {
	Pending   []AppointmentRow `json:"pending"`
	Approved  []AppointmentRow `json:"approved"`
	Rejected  []AppointmentRow `json:"rejected"`
	Completed []AppointmentRow `json:"completed"`
	Other     []AppointmentRow `json:"other,omitempty"`
	All       []AppointmentRow `json:"all"`
}

// Counts returns the size of every bucket keyed by bucket name.
func (b Buckets) Counts() map[string]int {
	counts := map[string]int{
		BucketPending:   len(b.Pending),
		BucketApproved:  len(b.Approved),
		BucketRejected:  len(b.Rejected),
		BucketCompleted: len(b.Completed),
		BucketAll:       len(b.All),
	}
	if b.Other != nil {
		counts[BucketOther] = len(b.Other)
	}
	return counts
}

var emptyCaptions = map[string]string{
	BucketPending:   "No Pending Requests",
	BucketApproved:  "No Approved Appointments",
	BucketRejected:  "No Rejected Appointments",
	BucketCompleted: "No Completed Appointments",
	BucketOther:     "No Other Appointments",
	BucketAll:       "No Appointments",
}

// EmptyCaption is the text shown for an empty bucket tab.
func EmptyCaption(bucket string) string {
	return emptyCaptions[bucket]
}

// Tab summarises one bucket for the tab strip.
type Tab struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Count   int    `json:"count"`
	Caption string `json:"caption,omitempty"`
}

// Tabs returns the tab strip in display order.
func (b Buckets) Tabs() []Tab {
	names := []string{BucketPending, BucketApproved, BucketRejected, BucketCompleted}
	if b.Other != nil {
		names = append(names, BucketOther)
	}
	names = append(names, BucketAll)

	counts := b.Counts()
	tabs := make([]Tab, 0, len(names))
	for _, name := range names {
		tab := Tab{
			Name:  name,
			Label: strings.ToUpper(name[:1]) + name[1:] + " (" + strconv.Itoa(counts[name]) + ")",
			Count: counts[name],
		}
		if tab.Count == 0 {
			tab.Caption = EmptyCaption(name)
		}
		tabs = append(tabs, tab)
	}
	return tabs
}

// Patient is one entry of a doctor's patient roster.
type Patient struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Age       string `json:"age"`
	Gender    string `json:"gender"`
	Phone     string `json:"phone"`
	Email     string `json:"email"`
	Address   string `json:"address"`
	LastVisit string `json:"lastVisit"`
	Condition string `json:"condition"`
	Image     string `json:"image"`
}

type UpdateStatusRequest struct {
	Status      string `json:"status" validate:"required,oneof=APPROVED REJECTED COMPLETED approved rejected completed"`
	PatientName string `json:"patient_name" validate:"max=200"`
}
