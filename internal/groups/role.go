package groups

import (
	"fmt"
	"strings"

	"mediagate.org/internal/access"
)

// Role is a member's capability tier inside a group. It maps to an engine
// permission but deliberately is not the same type, so the two hierarchies
// can evolve independently.
type Role string

const (
	RoleViewer      Role = "viewer"
	RoleContributor Role = "contributor"
	RoleEditor      Role = "editor"
	RoleAdmin       Role = "admin"
	RoleOwner       Role = "owner"
)

// Valid reports whether r is a defined role.
func (r Role) Valid() bool {
	switch r {
	case RoleViewer, RoleContributor, RoleEditor, RoleAdmin, RoleOwner:
		return true
	}
	return false
}

// Permission maps the role to the engine capability it grants. This mapping
// is the only place the two hierarchies meet.
func (r Role) Permission() access.Permission {
	switch r {
	case RoleOwner, RoleAdmin:
		return access.PermissionAdmin
	case RoleEditor:
		return access.PermissionEdit
	case RoleContributor:
		return access.PermissionDownload
	case RoleViewer:
		return access.PermissionRead
	default:
		return 0
	}
}

// rank orders roles for management checks: who may change whose membership.
func (r Role) rank() int {
	switch r {
	case RoleViewer:
		return 1
	case RoleContributor:
		return 2
	case RoleEditor:
		return 3
	case RoleAdmin:
		return 4
	case RoleOwner:
		return 5
	default:
		return 0
	}
}

// ParseRole maps the storage/CLI form back to a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.TrimSpace(strings.ToLower(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", access.ErrInvalidInput, s)
	}
	return r, nil
}
