package groups

import "time"

// Membership is one user's role inside one group, unique per
// (group_id, user_id).
type Membership struct {
	GroupID   int64
	UserID    string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InvitationStatus is the invitation state machine. Pending is the only
// non-terminal state.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
	InvitationExpired  InvitationStatus = "expired"
)

// DefaultInvitationTTL is how long an unaccepted invitation stays valid.
const DefaultInvitationTTL = 7 * 24 * time.Hour

// Invitation is a single-use token admitting one user into a group at a
// fixed role.
type Invitation struct {
	ID        string
	GroupID   int64
	InviterID string
	Email     string
	Role      Role
	Token     string
	Status    InvitationStatus
	ExpiresAt time.Time
	CreatedAt time.Time
}
