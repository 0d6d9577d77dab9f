package groups

import "context"

// Store persists memberships and invitations.
type Store interface {
	// RoleOf returns ok=false when the user is not a member; that is an
	// ordinary empty result, not an error.
	RoleOf(ctx context.Context, groupID int64, userID string) (Role, bool, error)
	// AddMember returns access.ErrConflict for a duplicate (group, user) pair.
	AddMember(ctx context.Context, m *Membership) error
	// UpdateRole returns access.ErrNotFound when no such membership exists.
	UpdateRole(ctx context.Context, groupID int64, userID string, role Role) error
	RemoveMember(ctx context.Context, groupID int64, userID string) error
	ListMembers(ctx context.Context, groupID int64) ([]Membership, error)

	CreateInvitation(ctx context.Context, inv *Invitation) error
	FindInvitationByToken(ctx context.Context, token string) (Invitation, error)
	// TransitionInvitation moves the invitation from one status to another
	// in a single conditional update. ok=false means the invitation was not
	// in the expected status, which makes the token single-use under
	// concurrent acceptance.
	TransitionInvitation(ctx context.Context, id string, from, to InvitationStatus) (bool, error)
}
