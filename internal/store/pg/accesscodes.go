package pg

import (
	"context"
	"database/sql"
	"errors"

	"mediagate.org/internal/access"
	"mediagate.org/internal/accesscode"
)

func (s *Store) Create(ctx context.Context, code *accesscode.Code, digest string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		insert into access_codes (id, code_digest, owner_id, description, active, expires_at, max_uses, current_uses, permission_level, group_id, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9, $10)
	`, code.ID, digest, code.OwnerID, nullString(code.Description), code.Active,
		nullTime(code.ExpiresAt), nullInt64(code.MaxUses), code.Permission.String(),
		nullInt64(code.Scope.GroupID), code.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return access.ErrConflict
		}
		return err
	}

	// Scope rows exist only for explicitly scoped codes; group scope is a
	// single nullable column on the code itself.
	for _, ref := range code.Scope.Resources {
		if _, err := tx.ExecContext(ctx, `
			insert into access_code_resources (code_id, resource_type, resource_id)
			values ($1, $2, $3)
		`, code.ID, string(ref.Type), ref.ID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) FindByDigest(ctx context.Context, digest string) (accesscode.Code, error) {
	var (
		code      accesscode.Code
		desc      sql.NullString
		expiresAt sql.NullTime
		maxUses   sql.NullInt64
		groupID   sql.NullInt64
		permRaw   string
	)
	err := s.db.QueryRowContext(ctx, `
		select id, owner_id, description, active, expires_at, max_uses, current_uses, permission_level, group_id, created_at
		from access_codes
		where code_digest = $1
	`, digest).Scan(&code.ID, &code.OwnerID, &desc, &code.Active, &expiresAt,
		&maxUses, &code.CurrentUses, &permRaw, &groupID, &code.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return accesscode.Code{}, access.ErrNotFound
	}
	if err != nil {
		return accesscode.Code{}, err
	}
	if desc.Valid {
		code.Description = desc.String
	}
	if expiresAt.Valid {
		code.ExpiresAt = expiresAt.Time
	}
	if maxUses.Valid {
		code.MaxUses = maxUses.Int64
	}
	perm, err := access.ParsePermission(permRaw)
	if err != nil {
		return accesscode.Code{}, err
	}
	code.Permission = perm

	if groupID.Valid {
		code.Scope.GroupID = groupID.Int64
		return code, nil
	}
	refs, err := s.scopeResources(ctx, code.ID)
	if err != nil {
		return accesscode.Code{}, err
	}
	code.Scope.Resources = refs
	return code, nil
}

func (s *Store) scopeResources(ctx context.Context, codeID string) ([]access.ResourceRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		select resource_type, resource_id
		from access_code_resources
		where code_id = $1
		order by resource_type, resource_id
	`, codeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []access.ResourceRef
	for rows.Next() {
		var (
			kind string
			id   int64
		)
		if err := rows.Scan(&kind, &id); err != nil {
			return nil, err
		}
		refs = append(refs, access.ResourceRef{Type: access.ResourceType(kind), ID: id})
	}
	return refs, rows.Err()
}

func (s *Store) Revoke(ctx context.Context, ownerID, codeID string) error {
	res, err := s.db.ExecContext(ctx, `
		update access_codes set active = false
		where id = $1 and owner_id = $2
	`, codeID, ownerID)
	if err != nil {
		return err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if aff == 0 {
		return access.ErrNotFound
	}
	return nil
}

func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]accesscode.Code, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, owner_id, description, active, expires_at, max_uses, current_uses, permission_level, group_id, created_at
		from access_codes
		where owner_id = $1
		order by created_at desc
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var codes []accesscode.Code
	for rows.Next() {
		var (
			code      accesscode.Code
			desc      sql.NullString
			expiresAt sql.NullTime
			maxUses   sql.NullInt64
			groupID   sql.NullInt64
			permRaw   string
		)
		if err := rows.Scan(&code.ID, &code.OwnerID, &desc, &code.Active, &expiresAt,
			&maxUses, &code.CurrentUses, &permRaw, &groupID, &code.CreatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			code.Description = desc.String
		}
		if expiresAt.Valid {
			code.ExpiresAt = expiresAt.Time
		}
		if maxUses.Valid {
			code.MaxUses = maxUses.Int64
		}
		perm, err := access.ParsePermission(permRaw)
		if err != nil {
			return nil, err
		}
		code.Permission = perm
		if groupID.Valid {
			code.Scope.GroupID = groupID.Int64
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Explicit scopes are loaded per code; owners hold few codes, so the
	// extra point lookups stay cheap.
	for i := range codes {
		if codes[i].Scope.GroupID != 0 {
			continue
		}
		refs, err := s.scopeResources(ctx, codes[i].ID)
		if err != nil {
			return nil, err
		}
		codes[i].Scope.Resources = refs
	}
	return codes, nil
}

// ConsumeUse is the single write on the check path. The condition closes
// the race between a capacity read and the increment: whatever an earlier
// read said, zero affected rows means the cap is spent.
func (s *Store) ConsumeUse(ctx context.Context, codeID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update access_codes
		set current_uses = current_uses + 1
		where id = $1 and (max_uses is null or current_uses < max_uses)
	`, codeID)
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff == 1, nil
}
