package appointment

import (
	"fmt"
	"strings"

	"github.com/jwalitptl/portal-api/internal/model"
)

// UnknownStatusMode decides where a status outside the known four goes.
type UnknownStatusMode string

const (
	// UnknownAsPending files unknown statuses under pending. This is what the
	// doctor dashboard has always done.
	UnknownAsPending UnknownStatusMode = "pending"
	// UnknownAsOther keeps them in a separate "other" bucket.
	UnknownAsOther UnknownStatusMode = "other"
)

func ParseUnknownStatusMode(s string) (UnknownStatusMode, error) {
	switch UnknownStatusMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", UnknownAsPending:
		return UnknownAsPending, nil
	case UnknownAsOther:
		return UnknownAsOther, nil
	}
	return "", fmt.Errorf("unknown status mode %q: want %q or %q", s, UnknownAsPending, UnknownAsOther)
}

// Categorize projects every appointment and partitions the rows by status in
// a single pass. Order inside each bucket follows the input order. The input
// is not modified.
func Categorize(list []model.Appointment, f *Formatter, mode UnknownStatusMode) model.Buckets {
	b := model.Buckets{
		Pending:   []model.AppointmentRow{},
		Approved:  []model.AppointmentRow{},
		Rejected:  []model.AppointmentRow{},
		Completed: []model.AppointmentRow{},
		All:       make([]model.AppointmentRow, 0, len(list)),
	}
	if mode == UnknownAsOther {
		b.Other = []model.AppointmentRow{}
	}

	for _, a := range list {
		row := Project(a, f)
		b.All = append(b.All, row)

		switch row.Status {
		case model.AppointmentStatusPending:
			b.Pending = append(b.Pending, row)
		case model.AppointmentStatusApproved:
			b.Approved = append(b.Approved, row)
		case model.AppointmentStatusRejected:
			b.Rejected = append(b.Rejected, row)
		case model.AppointmentStatusCompleted:
			b.Completed = append(b.Completed, row)
		default:
			if mode == UnknownAsOther {
				b.Other = append(b.Other, row)
			} else {
				b.Pending = append(b.Pending, row)
			}
		}
	}
	return b
}

// countUnknown reports how many records carry a status outside the known set.
func countUnknown(list []model.Appointment) int {
	n := 0
	for _, a := range list {
		if !a.NormalizedStatus().IsKnown() {
			n++
		}
	}
	return n
}
