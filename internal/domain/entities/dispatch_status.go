package entities

// RequestStatus is the lifecycle state of a dispatch request
type RequestStatus string

const (
	StatusPending             RequestStatus = "pending"
	StatusAssigned            RequestStatus = "assigned"
	StatusOnTheWay            RequestStatus = "on_the_way"
	StatusCompleted           RequestStatus = "completed"
	StatusForwardedToHospital RequestStatus = "forwarded_to_hospital"
	StatusHospitalAccepted    RequestStatus = "hospital_accepted"
	StatusHospitalRejected    RequestStatus = "hospital_rejected"
	StatusCancelled           RequestStatus = "cancelled"
)

// transitions lists every legal from -> to edge. Cancellation is handled
// separately since it applies to every non-terminal state outside the
// forward branch. A forwarded request belongs to the hospital.
var transitions = map[RequestStatus][]RequestStatus{
	StatusPending:             {StatusForwardedToHospital, StatusAssigned},
	StatusForwardedToHospital: {StatusHospitalAccepted, StatusHospitalRejected},
	StatusAssigned:            {StatusOnTheWay},
	StatusOnTheWay:            {StatusCompleted},
}

// AllStatuses returns the statuses in lifecycle order
func AllStatuses() []RequestStatus {
	return []RequestStatus{
		StatusPending,
		StatusAssigned,
		StatusOnTheWay,
		StatusCompleted,
		StatusForwardedToHospital,
		StatusHospitalAccepted,
		StatusHospitalRejected,
		StatusCancelled,
	}
}

// Valid reports whether s is a known status
func (s RequestStatus) Valid() bool {
	for _, known := range AllStatuses() {
		if s == known {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition may leave s
func (s RequestStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsForwardBranch reports whether s belongs to the hospital forwarding branch
func (s RequestStatus) IsForwardBranch() bool {
	return s == StatusForwardedToHospital || s == StatusHospitalAccepted || s == StatusHospitalRejected
}

// CanTransition reports whether the lifecycle allows from -> to.
func CanTransition(from, to RequestStatus) bool {
	if !from.Valid() || !to.Valid() || from.IsTerminal() {
		return false
	}
	if to == StatusCancelled {
		return !from.IsForwardBranch()
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
