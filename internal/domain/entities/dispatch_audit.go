package entities

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction is an operator command recorded in the journal
type AuditAction string

const (
	AuditActionForward  AuditAction = "forward"
	AuditActionMarkRead AuditAction = "mark_read"
)

// AuditOutcome records how a command ended
type AuditOutcome string

const (
	AuditOutcomeSucceeded AuditOutcome = "succeeded"
	AuditOutcomeRejected  AuditOutcome = "rejected"
	AuditOutcomeFailed    AuditOutcome = "failed"
)

// AuditEntry is one row of the dispatch command journal
type AuditEntry struct {
	ID         string       `json:"id" db:"id"`
	RequestID  int64        `json:"request_id" db:"request_id"`
	Action     AuditAction  `json:"action" db:"action"`
	Outcome    AuditOutcome `json:"outcome" db:"outcome"`
	ActorID    string       `json:"actor_id" db:"actor_id"`
	ActorRole  Role         `json:"actor_role" db:"actor_role"`
	HospitalID *int64       `json:"hospital_id,omitempty" db:"hospital_id"`
	Reason     string       `json:"reason,omitempty" db:"reason"`
	CreatedAt  time.Time    `json:"created_at" db:"created_at"`
}

// NewAuditEntry stamps a journal row for actor's command on requestID
func NewAuditEntry(actor ActorContext, requestID int64, action AuditAction, outcome AuditOutcome) *AuditEntry {
	return &AuditEntry{
		ID:        uuid.NewString(),
		RequestID: requestID,
		Action:    action,
		Outcome:   outcome,
		ActorID:   actor.Subject,
		ActorRole: actor.Role,
		CreatedAt: time.Now().UTC(),
	}
}
