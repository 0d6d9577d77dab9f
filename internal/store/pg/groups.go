package pg

import (
	"context"
	"database/sql"
	"errors"

	"mediagate.org/internal/access"
	"mediagate.org/internal/groups"
)

func (s *Store) RoleOf(ctx context.Context, groupID int64, userID string) (groups.Role, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		select role from group_members
		where group_id = $1 and user_id = $2
	`, groupID, userID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		// Not a member: a legitimate empty state, not a failure.
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	role, err := groups.ParseRole(raw)
	if err != nil {
		return "", false, err
	}
	return role, true, nil
}

func (s *Store) AddMember(ctx context.Context, m *groups.Membership) error {
	err := s.db.QueryRowContext(ctx, `
		insert into group_members (group_id, user_id, role)
		values ($1, $2, $3)
		returning created_at, updated_at
	`, m.GroupID, m.UserID, string(m.Role)).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return access.ErrConflict
			case pgErrForeignKeyViolation:
				return access.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *Store) UpdateRole(ctx context.Context, groupID int64, userID string, role groups.Role) error {
	res, err := s.db.ExecContext(ctx, `
		update group_members set role = $3, updated_at = now()
		where group_id = $1 and user_id = $2
	`, groupID, userID, string(role))
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

func (s *Store) RemoveMember(ctx context.Context, groupID int64, userID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from group_members
		where group_id = $1 and user_id = $2
	`, groupID, userID)
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

func (s *Store) ListMembers(ctx context.Context, groupID int64) ([]groups.Membership, error) {
	rows, err := s.db.QueryContext(ctx, `
		select group_id, user_id, role, created_at, updated_at
		from group_members
		where group_id = $1
		order by user_id
	`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []groups.Membership
	for rows.Next() {
		var (
			m   groups.Membership
			raw string
		)
		if err := rows.Scan(&m.GroupID, &m.UserID, &raw, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		role, err := groups.ParseRole(raw)
		if err != nil {
			return nil, err
		}
		m.Role = role
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *Store) CreateInvitation(ctx context.Context, inv *groups.Invitation) error {
	_, err := s.db.ExecContext(ctx, `
		insert into group_invitations (id, group_id, inviter_id, email, role, token, status, expires_at, created_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, inv.ID, inv.GroupID, inv.InviterID, inv.Email, string(inv.Role), inv.Token,
		string(inv.Status), inv.ExpiresAt, inv.CreatedAt)
	if err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return access.ErrConflict
			case pgErrForeignKeyViolation:
				return access.ErrNotFound
			}
		}
		return err
	}
	return nil
}

func (s *Store) FindInvitationByToken(ctx context.Context, token string) (groups.Invitation, error) {
	var (
		inv     groups.Invitation
		roleRaw string
		statRaw string
	)
	err := s.db.QueryRowContext(ctx, `
		select id, group_id, inviter_id, email, role, token, status, expires_at, created_at
		from group_invitations
		where token = $1
	`, token).Scan(&inv.ID, &inv.GroupID, &inv.InviterID, &inv.Email, &roleRaw,
		&inv.Token, &statRaw, &inv.ExpiresAt, &inv.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return groups.Invitation{}, access.ErrNotFound
	}
	if err != nil {
		return groups.Invitation{}, err
	}
	role, err := groups.ParseRole(roleRaw)
	if err != nil {
		return groups.Invitation{}, err
	}
	inv.Role = role
	inv.Status = groups.InvitationStatus(statRaw)
	return inv, nil
}

// TransitionInvitation performs the conditional state change that keeps
// tokens single-use under concurrent redemption.
func (s *Store) TransitionInvitation(ctx context.Context, id string, from, to groups.InvitationStatus) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update group_invitations set status = $3
		where id = $1 and status = $2
	`, id, string(from), string(to))
	if err != nil {
		return false, err
	}
	aff, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return aff == 1, nil
}
