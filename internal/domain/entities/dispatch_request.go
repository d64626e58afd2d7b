package entities

import (
	"strconv"
	"time"
)

// Priority is the triage priority set at intake
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityNormal   Priority = "normal"
	PriorityLow      Priority = "low"
)

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

// ForwardResponse is a hospital's answer to a forwarded request
type ForwardResponse string

const (
	ForwardResponsePending  ForwardResponse = "pending"
	ForwardResponseAccepted ForwardResponse = "accepted"
	ForwardResponseRejected ForwardResponse = "rejected"
)

// PatientInfo is owned by the intake system and only displayed here
type PatientInfo struct {
	Name           string `json:"name"`
	Phone          string `json:"phone"`
	ConditionNotes string `json:"condition_notes,omitempty"`
}

// Forward records the single hospital a request was forwarded to
type Forward struct {
	HospitalID      int64           `json:"hospital_id"`
	HospitalName    string          `json:"hospital_name"`
	HospitalAddress string          `json:"hospital_address"`
	Response        ForwardResponse `json:"response"`
	ResponseNotes   string          `json:"response_notes,omitempty"`
	RespondedAt     *time.Time      `json:"responded_at,omitempty"`
}

// AssignedAmbulance is populated by the external assignment process
type AssignedAmbulance struct {
	Registration string `json:"registration"`
	Type         string `json:"type"`
	DriverName   string `json:"driver_name"`
	DriverPhone  string `json:"driver_phone"`
}

// DispatchRequest is an ambulance request tracked from intake to resolution
type DispatchRequest struct {
	ID                 int64              `json:"id"`
	Status             RequestStatus      `json:"status"`
	Priority           Priority           `json:"priority"`
	EmergencyType      string             `json:"emergency_type"`
	Pickup             PickupLocation     `json:"pickup"`
	DestinationAddress *string            `json:"destination_address,omitempty"`
	Patient            PatientInfo        `json:"patient"`
	IsRead             bool               `json:"is_read"`
	Forward            *Forward           `json:"forward,omitempty"`
	AssignedAmbulance  *AssignedAmbulance `json:"assigned_ambulance,omitempty"`
	OwnerState         string             `json:"owner_state"`
	CreatedAt          time.Time          `json:"created_at"`
}

// IDString returns the id in the form operators search by
func (r *DispatchRequest) IDString() string {
	return strconv.FormatInt(r.ID, 10)
}

// IsForwarded reports whether a forward action already happened
func (r *DispatchRequest) IsForwarded() bool {
	return r.Forward != nil
}

// Clone returns a deep copy so callers can never alias store state
func (r DispatchRequest) Clone() DispatchRequest {
	out := r
	if r.DestinationAddress != nil {
		dest := *r.DestinationAddress
		out.DestinationAddress = &dest
	}
	if r.Forward != nil {
		fwd := *r.Forward
		if r.Forward.RespondedAt != nil {
			at := *r.Forward.RespondedAt
			fwd.RespondedAt = &at
		}
		out.Forward = &fwd
	}
	if r.AssignedAmbulance != nil {
		amb := *r.AssignedAmbulance
		out.AssignedAmbulance = &amb
	}
	return out
}

// Normalize enforces the forward sub-record invariants on data received
// from the backend: a response always exists with a forward record, and
// respondedAt only once the hospital answered.
func (r *DispatchRequest) Normalize() {
	if r.Forward == nil {
		return
	}
	switch r.Forward.Response {
	case ForwardResponseAccepted, ForwardResponseRejected:
	default:
		r.Forward.Response = ForwardResponsePending
	}
	if r.Forward.Response == ForwardResponsePending {
		r.Forward.RespondedAt = nil
	}
}

// RequestPatch carries backend-confirmed field changes for one request.
// Nil fields are left untouched.
type RequestPatch struct {
	Status            *RequestStatus
	Forward           *Forward
	AssignedAmbulance *AssignedAmbulance
}

// IsEmpty reports whether the patch changes nothing
func (p RequestPatch) IsEmpty() bool {
	return p.Status == nil && p.Forward == nil && p.AssignedAmbulance == nil
}
