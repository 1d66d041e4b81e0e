package appointment

import (
	"strings"
	"time"

	"github.com/jwalitptl/portal-api/internal/model"
)

// BuildRoster derives the doctor's unique patients from an appointment list.
// Records without a patient id are skipped. A later record for the same
// patient replaces the earlier entry in place, keeping the earlier last visit
// when it has no date of its own.
func BuildRoster(list []model.Appointment, f *Formatter) []model.Patient {
	if f == nil {
		f = DefaultFormatter()
	}

	index := make(map[int64]int)
	roster := make([]model.Patient, 0)

	for _, a := range list {
		p := a.Patient
		if p == nil || p.ID == nil {
			continue
		}

		lastVisit := ""
		if t, ok := f.Parse(a.AppointmentDate); ok {
			lastVisit = t.UTC().Format(time.DateOnly)
		}

		name := p.Name
		if name == "" {
			name = model.DefaultPatientName
		}

		entry := model.Patient{
			ID:        *p.ID,
			Name:      name,
			Age:       p.Age.String(),
			Gender:    p.Gender,
			Phone:     p.PhoneNumber,
			Email:     p.Email,
			Address:   p.Location,
			LastVisit: lastVisit,
			Condition: p.Specialty,
			Image:     model.PlaceholderImage,
		}

		if i, ok := index[entry.ID]; ok {
			if entry.LastVisit == "" {
				entry.LastVisit = roster[i].LastVisit
			}
			roster[i] = entry
			continue
		}
		index[entry.ID] = len(roster)
		roster = append(roster, entry)
	}
	return roster
}

// FilterRoster keeps patients whose name or condition contains term, ignoring
// case. An empty term keeps everyone.
func FilterRoster(patients []model.Patient, term string) []model.Patient {
	term = strings.ToLower(term)
	out := make([]model.Patient, 0, len(patients))
	for _, p := range patients {
		if strings.Contains(strings.ToLower(p.Name), term) || strings.Contains(strings.ToLower(p.Condition), term) {
			out = append(out, p)
		}
	}
	return out
}
