package repositories

import (
	"context"

	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/entities"
)

// DispatchRepository is the authoritative dispatch backend. Implementations
// take the caller's session token from ctx.
type DispatchRepository interface {
	// ListRequests returns every dispatch request visible to the token
	ListRequests(ctx context.Context) ([]entities.DispatchRequest, error)

	// MarkRead acknowledges that an operator opened the request; idempotent
	MarkRead(ctx context.Context, requestID int64) error

	// Forward asks the backend to forward requestID to hospitalID
	Forward(ctx context.Context, requestID, hospitalID int64) error
}

// HospitalRepository lists forwarding targets
type HospitalRepository interface {
	// ListHospitals returns hospitals in state, or every hospital when state is empty
	ListHospitals(ctx context.Context, state string) ([]entities.Hospital, error)
}

// AuditRepository persists the operator command journal
type AuditRepository interface {
	Record(ctx context.Context, entry *entities.AuditEntry) error
	ListByRequest(ctx context.Context, requestID int64, limit int) ([]*entities.AuditEntry, error)
}
