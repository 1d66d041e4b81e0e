package appointment

import (
	"strings"
	"unicode/utf8"

	"github.com/jwalitptl/portal-api/internal/model"
)

// Project turns a raw appointment into its display row. It never fails:
// missing nested fields render as empty strings.
func Project(a model.Appointment, f *Formatter) model.AppointmentRow {
	if f == nil {
		f = DefaultFormatter()
	}

	name := model.DefaultPatientName
	var age, gender string
	if p := a.Patient; p != nil {
		if n := strings.TrimSpace(p.Name); n != "" {
			name = n
		}
		age = p.Age.String()
		gender = p.Gender
	}

	date, clock := f.DateTime(a.AppointmentDate)
	status := a.NormalizedStatus()

	return model.AppointmentRow{
		ID:       a.ID,
		Patient:  name,
		Initials: Initials(name),
		Age:      age,
		Gender:   gender,
		Date:     date,
		Time:     clock,
		Type:     model.AppointmentTypeInPerson,
		Reason:   a.Reason,
		Status:   status,
		Badge:    BadgeFor(status),
		Image:    model.PlaceholderImage,
		Actions:  ActionsFor(status),
	}
}

// Initials is the avatar fallback: the first letter of every word.
func Initials(name string) string {
	var b strings.Builder
	for _, word := range strings.Fields(name) {
		r, _ := utf8.DecodeRuneInString(word)
		b.WriteRune(r)
	}
	return b.String()
}

// BadgeFor maps a status to its badge colour.
func BadgeFor(status model.AppointmentStatus) model.BadgeTone {
	switch status {
	case model.AppointmentStatusApproved:
		return model.BadgeGreen
	case model.AppointmentStatusPending:
		return model.BadgeYellow
	case model.AppointmentStatusRejected:
		return model.BadgeRed
	case model.AppointmentStatusCompleted:
		return model.BadgeBlue
	default:
		return model.BadgeGray
	}
}
