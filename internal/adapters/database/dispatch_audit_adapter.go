package database

import (
	"context"
	"database/sql"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"

	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/entities"
	"github.com/shivam13669/CRMManagementt-sub003/internal/domain/repositories"
	"github.com/shivam13669/CRMManagementt-sub003/internal/infrastructure/clients/postgres"
	apperrors "github.com/shivam13669/CRMManagementt-sub003/pkg/errors"
)

const auditTable = "dispatch_audit"

const auditSchema = `CREATE TABLE IF NOT EXISTS dispatch_audit (
	id          UUID PRIMARY KEY,
	request_id  BIGINT NOT NULL,
	action      TEXT NOT NULL,
	outcome     TEXT NOT NULL,
	actor_id    TEXT NOT NULL,
	actor_role  TEXT NOT NULL,
	hospital_id BIGINT,
	reason      TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS dispatch_audit_request_idx ON dispatch_audit (request_id, created_at DESC);`

// DispatchAuditAdapter stores the operator command journal in PostgreSQL
type DispatchAuditAdapter struct {
	client *postgres.Client
	db     *goqu.Database
}

// NewDispatchAuditAdapter creates a new audit adapter
func NewDispatchAuditAdapter(client *postgres.Client) *DispatchAuditAdapter {
	return &DispatchAuditAdapter{
		client: client,
		db:     goqu.New("postgres", client.DB()),
	}
}

var _ repositories.AuditRepository = (*DispatchAuditAdapter)(nil)

// InitSchema creates the journal table when missing
func (a *DispatchAuditAdapter) InitSchema(ctx context.Context) error {
	if _, err := a.client.DB().ExecContext(ctx, auditSchema); err != nil {
		return apperrors.NewInternalError("failed to create audit schema", err)
	}
	return nil
}

// Record appends one entry
func (a *DispatchAuditAdapter) Record(ctx context.Context, entry *entities.AuditEntry) error {
	record := goqu.Record{
		"id":          entry.ID,
		"request_id":  entry.RequestID,
		"action":      string(entry.Action),
		"outcome":     string(entry.Outcome),
		"actor_id":    entry.ActorID,
		"actor_role":  string(entry.ActorRole),
		"hospital_id": entry.HospitalID,
		"reason":      entry.Reason,
		"created_at":  entry.CreatedAt,
	}

	query, args, err := a.db.Insert(auditTable).Rows(record).ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build insert query", err)
	}

	if _, err := a.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewInternalError("failed to record audit entry", err)
	}
	return nil
}

// ListByRequest returns the newest entries for one request
func (a *DispatchAuditAdapter) ListByRequest(ctx context.Context, requestID int64, limit int) ([]*entities.AuditEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query, args, err := a.db.Select(
		"id", "request_id", "action", "outcome", "actor_id",
		"actor_role", "hospital_id", "reason", "created_at",
	).From(auditTable).
		Where(goqu.Ex{"request_id": requestID}).
		Order(goqu.C("created_at").Desc()).
		Limit(uint(limit)).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build query", err)
	}

	rows, err := a.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list audit entries", err)
	}
	defer rows.Close()

	var entries []*entities.AuditEntry
	for rows.Next() {
		entry := &entities.AuditEntry{}
		var hospitalID sql.NullInt64
		if err := rows.Scan(
			&entry.ID,
			&entry.RequestID,
			&entry.Action,
			&entry.Outcome,
			&entry.ActorID,
			&entry.ActorRole,
			&hospitalID,
			&entry.Reason,
			&entry.CreatedAt,
		); err != nil {
			return nil, apperrors.NewInternalError("failed to scan audit entry", err)
		}
		if hospitalID.Valid {
			id := hospitalID.Int64
			entry.HospitalID = &id
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewInternalError("failed to iterate audit entries", err)
	}
	return entries, nil
}
