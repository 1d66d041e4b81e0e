package appointment

import (
	"github.com/jwalitptl/portal-api/internal/model"
)

// transitions lists the status changes the doctor view offers. The backend
// enforces its own rules; this table only orders the buttons.
var transitions = map[model.AppointmentStatus][]model.AppointmentStatus{
	model.AppointmentStatusPending:   {model.AppointmentStatusApproved, model.AppointmentStatusRejected},
	model.AppointmentStatusApproved:  {model.AppointmentStatusCompleted},
	model.AppointmentStatusRejected:  {model.AppointmentStatusCompleted},
	model.AppointmentStatusCompleted: {},
}

// ActionsFor returns the actions enabled for a row in the given status.
func ActionsFor(status model.AppointmentStatus) model.RowActions {
	return model.RowActions{
		Pending:  false,
		Approve:  CanTransition(status, model.AppointmentStatusApproved),
		Reject:   CanTransition(status, model.AppointmentStatusRejected),
		Complete: CanTransition(status, model.AppointmentStatusCompleted),
	}
}

// CanTransition reports whether the view offers from -> to.
func CanTransition(from, to model.AppointmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTarget reports whether status can be requested at all.
func IsTarget(status model.AppointmentStatus) bool {
	switch status {
	case model.AppointmentStatusApproved, model.AppointmentStatusRejected, model.AppointmentStatusCompleted:
		return true
	}
	return false
}
