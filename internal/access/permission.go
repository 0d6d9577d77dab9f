package access

import (
	"fmt"
	"strings"
)

// Permission is an ordered capability level. A higher level always includes
// every lower one; this ordering is the single source of truth and must not
// be re-derived elsewhere.
type Permission uint8

const (
	PermissionRead Permission = iota + 1
	PermissionDownload
	PermissionEdit
	PermissionDelete
	PermissionAdmin
)

// Includes reports whether p covers other.
func (p Permission) Includes(other Permission) bool {
	return p >= other
}

// Valid reports whether p is one of the five defined levels.
func (p Permission) Valid() bool {
	return p >= PermissionRead && p <= PermissionAdmin
}

func (p Permission) String() string {
	switch p {
	case PermissionRead:
		return "read"
	case PermissionDownload:
		return "download"
	case PermissionEdit:
		return "edit"
	case PermissionDelete:
		return "delete"
	case PermissionAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// ParsePermission maps the storage/CLI form back to a Permission.
func ParsePermission(s string) (Permission, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "read":
		return PermissionRead, nil
	case "download":
		return PermissionDownload, nil
	case "edit":
		return PermissionEdit, nil
	case "delete":
		return PermissionDelete, nil
	case "admin":
		return PermissionAdmin, nil
	}
	return 0, fmt.Errorf("%w: unknown permission %q", ErrInvalidInput, s)
}
