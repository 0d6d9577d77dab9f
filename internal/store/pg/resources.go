package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mediagate.org/internal/access"
)

// One static query per resource type. Table names are never built from
// request data: adding a resource kind means a new access.ResourceType
// constant and one new arm in each switch below.

func publicQuery(t access.ResourceType) (string, error) {
	switch t {
	case access.ResourceVideo:
		return `select is_public from videos where id = $1`, nil
	case access.ResourceImage:
		return `select is_public from images where id = $1`, nil
	case access.ResourceDocument:
		return `select is_public from documents where id = $1`, nil
	case access.ResourceFile:
		return `select is_public from files where id = $1`, nil
	}
	return "", fmt.Errorf("%w: unknown resource type %q", access.ErrInvalidInput, t)
}

func ownerQuery(t access.ResourceType) (string, error) {
	switch t {
	case access.ResourceVideo:
		return `select owner_id from videos where id = $1`, nil
	case access.ResourceImage:
		return `select owner_id from images where id = $1`, nil
	case access.ResourceDocument:
		return `select owner_id from documents where id = $1`, nil
	case access.ResourceFile:
		return `select owner_id from files where id = $1`, nil
	}
	return "", fmt.Errorf("%w: unknown resource type %q", access.ErrInvalidInput, t)
}

func groupQuery(t access.ResourceType) (string, error) {
	switch t {
	case access.ResourceVideo:
		return `select group_id from videos where id = $1`, nil
	case access.ResourceImage:
		return `select group_id from images where id = $1`, nil
	case access.ResourceDocument:
		return `select group_id from documents where id = $1`, nil
	case access.ResourceFile:
		return `select group_id from files where id = $1`, nil
	}
	return "", fmt.Errorf("%w: unknown resource type %q", access.ErrInvalidInput, t)
}

func (s *Store) IsPublic(ctx context.Context, ref access.ResourceRef) (bool, error) {
	query, err := publicQuery(ref.Type)
	if err != nil {
		return false, err
	}
	var public bool
	err = s.db.QueryRowContext(ctx, query, ref.ID).Scan(&public)
	if errors.Is(err, sql.ErrNoRows) {
		return false, access.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	return public, nil
}

func (s *Store) OwnerOf(ctx context.Context, ref access.ResourceRef) (string, error) {
	query, err := ownerQuery(ref.Type)
	if err != nil {
		return "", err
	}
	var owner string
	err = s.db.QueryRowContext(ctx, query, ref.ID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", access.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return owner, nil
}

func (s *Store) GroupOf(ctx context.Context, ref access.ResourceRef) (int64, bool, error) {
	query, err := groupQuery(ref.Type)
	if err != nil {
		return 0, false, err
	}
	var groupID sql.NullInt64
	err = s.db.QueryRowContext(ctx, query, ref.ID).Scan(&groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, access.ErrNotFound
	}
	if err != nil {
		return 0, false, err
	}
	if !groupID.Valid {
		return 0, false, nil
	}
	return groupID.Int64, true, nil
}
