package entities

import (
	"time"

	"github.com/google/uuid"
)

// DispatchEventType names a lifecycle event published by the backend
type DispatchEventType string

const (
	DispatchEventCreated          DispatchEventType = "request_created"
	DispatchEventAssigned         DispatchEventType = "ambulance_assigned"
	DispatchEventDispatched       DispatchEventType = "ambulance_dispatched"
	DispatchEventArrived          DispatchEventType = "ambulance_arrived"
	DispatchEventCancelled        DispatchEventType = "request_cancelled"
	DispatchEventHospitalAccepted DispatchEventType = "hospital_accepted"
	DispatchEventHospitalRejected DispatchEventType = "hospital_rejected"
	DispatchEventForwarded        DispatchEventType = "request_forwarded"
)

// DispatchEvent is a push notification that a request changed upstream
type DispatchEvent struct {
	ID         string             `json:"id"`
	Type       DispatchEventType  `json:"type"`
	RequestID  int64              `json:"request_id"`
	HospitalID int64              `json:"hospital_id,omitempty"`
	Notes      string             `json:"notes,omitempty"`
	Ambulance  *AssignedAmbulance `json:"ambulance,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
}

// NewDispatchEvent creates an event stamped with a fresh id
func NewDispatchEvent(eventType DispatchEventType, requestID int64) *DispatchEvent {
	return &DispatchEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	}
}

// ViewInvalidation tells a connected browser that its session view changed
// and should be fetched again.
type ViewInvalidation struct {
	EventID   string    `json:"event_id"`
	SessionID string    `json:"-"`
	RequestID int64     `json:"request_id,omitempty"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// NewViewInvalidation stamps an invalidation for one session
func NewViewInvalidation(sessionID string, requestID int64, reason string) ViewInvalidation {
	return ViewInvalidation{
		EventID:   uuid.NewString(),
		SessionID: sessionID,
		RequestID: requestID,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	}
}
