package access

import "context"

// Repository is the narrow read contract resource managers implement for
// their own tables. Every method is an indexed point lookup. ErrNotFound
// means the resource id does not exist; "no group" is an ordinary empty
// result, not a failure.
type Repository interface {
	IsPublic(ctx context.Context, ref ResourceRef) (bool, error)
	OwnerOf(ctx context.Context, ref ResourceRef) (string, error)
	// GroupOf returns (0, false, nil) when the resource is not grouped.
	GroupOf(ctx context.Context, ref ResourceRef) (int64, bool, error)
}

// CodeValidator validates a presented bearer code against an already
// resolved resource. Lifecycle outcomes come back as the sentinel errors
// from this package (ErrNotFound, ErrExpired, ErrUsageExceeded,
// ErrUnauthorized); the evaluator collapses them into a denial. Anything
// else is a storage fault and fails closed.
type CodeValidator interface {
	Validate(ctx context.Context, presented string, res Resource, required Permission, client string) (Permission, error)
}

// RoleResolver reports the engine permission a requester's group role maps
// to, or ok=false when the requester is not a member. The role hierarchy
// itself stays inside the group subsystem; only the mapped permission
// crosses this boundary.
type RoleResolver interface {
	PermissionOf(ctx context.Context, userID string, groupID int64) (Permission, bool, error)
}

// AuditSink receives the final decision together with every per-layer
// verdict. Implementations must keep decision latency bounded: persistence
// happens out of band, with at most one time-limited inline write when the
// sink is backlogged.
type AuditSink interface {
	Record(final Decision, layers []Decision)
}
