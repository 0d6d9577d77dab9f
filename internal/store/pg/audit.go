package pg

import (
	"context"
	"database/sql"

	"mediagate.org/internal/audit"
)

func (s *Store) Append(ctx context.Context, e *audit.Entry) error {
	_, err := s.db.ExecContext(ctx, `
		insert into access_audit_log (id, requester_id, access_key, resource_type, resource_id, permission_requested, permission_granted, granted, layer, reason, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, e.ID, nullString(e.RequesterID), nullString(e.AccessKey), e.ResourceType, e.ResourceID,
		e.PermissionRequested, nullString(e.PermissionGranted), e.Granted, e.Layer, e.Reason, e.CreatedAt)
	return err
}

const auditColumns = `id, coalesce(requester_id, ''), coalesce(access_key, ''), resource_type, resource_id, permission_requested, coalesce(permission_granted, ''), granted, layer, reason, created_at`

func (s *Store) ListByRequester(ctx context.Context, requesterID string, limit int) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+auditColumns+`
		from access_audit_log
		where requester_id = $1
		order by created_at desc
		limit $2
	`, requesterID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanAuditRows(rows)
}

func (s *Store) ListByResource(ctx context.Context, resourceType string, resourceID int64, limit int) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+auditColumns+`
		from access_audit_log
		where resource_type = $1 and resource_id = $2
		order by created_at desc
		limit $3
	`, resourceType, resourceID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanAuditRows(rows)
}

func (s *Store) ListDenied(ctx context.Context, limit int) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+auditColumns+`
		from access_audit_log
		where granted = false
		order by created_at desc
		limit $1
	`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanAuditRows(rows)
}

func scanAuditRows(rows *sql.Rows) ([]audit.Entry, error) {
	defer rows.Close()
	var entries []audit.Entry
	for rows.Next() {
		var e audit.Entry
		if err := rows.Scan(&e.ID, &e.RequesterID, &e.AccessKey, &e.ResourceType, &e.ResourceID,
			&e.PermissionRequested, &e.PermissionGranted, &e.Granted, &e.Layer, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}
