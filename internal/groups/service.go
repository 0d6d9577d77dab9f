package groups

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"mediagate.org/internal/access"
	"mediagate.org/internal/ids"
)

// Service manages group memberships and the invitation lifecycle. It
// implements access.RoleResolver.
type Service struct {
	store         Store
	now           func() time.Time
	invitationTTL time.Duration
}

var _ access.RoleResolver = (*Service)(nil)

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithInvitationTTL overrides the default 7-day acceptance window.
func WithInvitationTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.invitationTTL = ttl
		}
	}
}

// NewService constructs the group subsystem over the given store.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("groups: store is required")
	}
	s := &Service{
		store:         store,
		now:           time.Now,
		invitationTTL: DefaultInvitationTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// PermissionOf resolves the requester's role in the group and maps it to an
// engine permission. ok=false when the requester is not a member.
func (s *Service) PermissionOf(ctx context.Context, userID string, groupID int64) (access.Permission, bool, error) {
	role, ok, err := s.store.RoleOf(ctx, groupID, userID)
	if err != nil || !ok {
		return 0, false, err
	}
	return role.Permission(), true, nil
}

// RoleOf exposes the raw role for management surfaces.
func (s *Service) RoleOf(ctx context.Context, groupID int64, userID string) (Role, bool, error) {
	return s.store.RoleOf(ctx, groupID, userID)
}

// AddMember directly adds a member; the actor must be an admin or owner of
// the group, and only owners may mint new owners.
func (s *Service) AddMember(ctx context.Context, actorID string, groupID int64, userID string, role Role) (Membership, error) {
	if err := s.requireManager(ctx, actorID, groupID, role); err != nil {
		return Membership{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Membership{}, fmt.Errorf("%w: user_id is required", access.ErrInvalidInput)
	}
	m := Membership{
		GroupID:   groupID,
		UserID:    userID,
		Role:      role,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.AddMember(ctx, &m); err != nil {
		return Membership{}, err
	}
	return m, nil
}

// ChangeRole updates an existing membership.
func (s *Service) ChangeRole(ctx context.Context, actorID string, groupID int64, userID string, role Role) error {
	if err := s.requireManager(ctx, actorID, groupID, role); err != nil {
		return err
	}
	return s.store.UpdateRole(ctx, groupID, userID, role)
}

// RemoveMember removes a membership. Members may always remove themselves;
// removing anyone else requires admin or owner.
func (s *Service) RemoveMember(ctx context.Context, actorID string, groupID int64, userID string) error {
	actorID = strings.TrimSpace(actorID)
	userID = strings.TrimSpace(userID)
	if actorID == "" || userID == "" {
		return fmt.Errorf("%w: actor_id and user_id are required", access.ErrInvalidInput)
	}
	if actorID != userID {
		if err := s.requireManager(ctx, actorID, groupID, RoleViewer); err != nil {
			return err
		}
	}
	return s.store.RemoveMember(ctx, groupID, userID)
}

// ListMembers returns the group roster.
func (s *Service) ListMembers(ctx context.Context, groupID int64) ([]Membership, error) {
	return s.store.ListMembers(ctx, groupID)
}

// Invite issues a single-use invitation token that expires after the
// acceptance window.
func (s *Service) Invite(ctx context.Context, actorID string, groupID int64, email string, role Role) (Invitation, error) {
	if err := s.requireManager(ctx, actorID, groupID, role); err != nil {
		return Invitation{}, err
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return Invitation{}, fmt.Errorf("%w: valid email is required", access.ErrInvalidInput)
	}
	now := s.now().UTC()
	inv := Invitation{
		ID:        ids.New(),
		GroupID:   groupID,
		InviterID: actorID,
		Email:     email,
		Role:      role,
		Token:     uuid.NewString(),
		Status:    InvitationPending,
		ExpiresAt: now.Add(s.invitationTTL),
		CreatedAt: now,
	}
	if err := s.store.CreateInvitation(ctx, &inv); err != nil {
		return Invitation{}, err
	}
	return inv, nil
}

// Accept redeems an invitation token and creates the membership. The
// pending→accepted transition is conditional, so a token races to exactly
// one acceptance.
func (s *Service) Accept(ctx context.Context, token, userID string) (Membership, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Membership{}, fmt.Errorf("%w: user_id is required", access.ErrInvalidInput)
	}
	inv, err := s.store.FindInvitationByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return Membership{}, err
	}
	if inv.Status != InvitationPending {
		return Membership{}, fmt.Errorf("%w: invitation already %s", access.ErrConflict, inv.Status)
	}
	if s.now().After(inv.ExpiresAt) {
		// Terminal state; best effort, the expiry check above is what gates.
		_, _ = s.store.TransitionInvitation(ctx, inv.ID, InvitationPending, InvitationExpired)
		return Membership{}, fmt.Errorf("%w: invitation expired at %s", access.ErrExpired, inv.ExpiresAt.Format(time.RFC3339))
	}
	ok, err := s.store.TransitionInvitation(ctx, inv.ID, InvitationPending, InvitationAccepted)
	if err != nil {
		return Membership{}, err
	}
	if !ok {
		return Membership{}, fmt.Errorf("%w: invitation already redeemed", access.ErrConflict)
	}
	m := Membership{
		GroupID:   inv.GroupID,
		UserID:    userID,
		Role:      inv.Role,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.AddMember(ctx, &m); err != nil {
		// A conflict means the membership already exists, so the token is
		// legitimately spent. Anything else must hand the token back, or a
		// transient storage fault would burn it without admitting anyone.
		if !errors.Is(err, access.ErrConflict) {
			_, _ = s.store.TransitionInvitation(ctx, inv.ID, InvitationAccepted, InvitationPending)
		}
		return Membership{}, err
	}
	return m, nil
}

// Decline marks a pending invitation declined.
func (s *Service) Decline(ctx context.Context, token string) error {
	inv, err := s.store.FindInvitationByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return err
	}
	if inv.Status != InvitationPending {
		return fmt.Errorf("%w: invitation already %s", access.ErrConflict, inv.Status)
	}
	ok, err := s.store.TransitionInvitation(ctx, inv.ID, InvitationPending, InvitationDeclined)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: invitation already redeemed", access.ErrConflict)
	}
	return nil
}

// requireManager verifies the actor may manage memberships at the target
// role level in the group.
func (s *Service) requireManager(ctx context.Context, actorID string, groupID int64, target Role) error {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return fmt.Errorf("%w: actor_id is required", access.ErrInvalidInput)
	}
	if groupID <= 0 {
		return fmt.Errorf("%w: group_id is required", access.ErrInvalidInput)
	}
	if !target.Valid() {
		return fmt.Errorf("%w: unknown role %q", access.ErrInvalidInput, target)
	}
	actorRole, ok, err := s.store.RoleOf(ctx, groupID, actorID)
	if err != nil {
		return err
	}
	if !ok || actorRole.rank() < RoleAdmin.rank() {
		return fmt.Errorf("%w: actor may not manage group %d", access.ErrUnauthorized, groupID)
	}
	if target == RoleOwner && actorRole != RoleOwner {
		return fmt.Errorf("%w: only an owner may grant the owner role", access.ErrUnauthorized)
	}
	return nil
}
