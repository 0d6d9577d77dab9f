package accesscode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mediagate.org/internal/access"
	"mediagate.org/internal/ids"
)

const defaultGenerateAttempts = 5

// Service owns the access-code lifecycle: minting, revocation and use-time
// validation. It implements access.CodeValidator.
type Service struct {
	store            Store
	guard            *Guard
	now              func() time.Time
	generateAttempts int
}

var _ access.CodeValidator = (*Service)(nil)

// Option configures Service behavior.
type Option func(*Service)

// WithGuard enables the per-client validation rate guard.
func WithGuard(g *Guard) Option {
	return func(s *Service) {
		s.guard = g
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithGenerateAttempts bounds the unique-digest retry loop.
func WithGenerateAttempts(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.generateAttempts = n
		}
	}
}

// NewService constructs the code subsystem over the given store.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("accesscode: store is required")
	}
	s := &Service{
		store:            store,
		now:              time.Now,
		generateAttempts: defaultGenerateAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CreateParams describes a new code.
type CreateParams struct {
	OwnerID     string
	Description string
	ExpiresAt   time.Time // zero for no expiry
	MaxUses     int64     // zero for unlimited
	Permission  access.Permission
	Scope       Scope
}

// Create mints a new code and returns it together with the one-time
// plaintext secret. On a digest collision the secret is regenerated up to a
// bounded number of attempts.
func (s *Service) Create(ctx context.Context, p CreateParams) (Code, string, error) {
	p.OwnerID = strings.TrimSpace(p.OwnerID)
	if p.OwnerID == "" {
		return Code{}, "", fmt.Errorf("%w: owner_id is required", access.ErrInvalidInput)
	}
	if !p.Permission.Valid() {
		return Code{}, "", fmt.Errorf("%w: permission level is required", access.ErrInvalidInput)
	}
	if p.MaxUses < 0 {
		return Code{}, "", fmt.Errorf("%w: max_uses must not be negative", access.ErrInvalidInput)
	}
	if !p.ExpiresAt.IsZero() && !p.ExpiresAt.After(s.now()) {
		return Code{}, "", fmt.Errorf("%w: expires_at is already in the past", access.ErrInvalidInput)
	}
	if err := p.Scope.Validate(); err != nil {
		return Code{}, "", err
	}

	code := Code{
		ID:          ids.New(),
		OwnerID:     p.OwnerID,
		Description: strings.TrimSpace(p.Description),
		Active:      true,
		ExpiresAt:   p.ExpiresAt,
		MaxUses:     p.MaxUses,
		Permission:  p.Permission,
		Scope:       p.Scope,
		CreatedAt:   s.now().UTC(),
	}

	for attempt := 0; attempt < s.generateAttempts; attempt++ {
		secret, err := GenerateSecret()
		if err != nil {
			return Code{}, "", fmt.Errorf("%w: %v", access.ErrInternal, err)
		}
		err = s.store.Create(ctx, &code, HashSecret(secret))
		if err == nil {
			return code, secret, nil
		}
		if errors.Is(err, access.ErrConflict) {
			continue
		}
		return Code{}, "", err
	}
	return Code{}, "", fmt.Errorf("%w: could not allocate a unique code after %d attempts", access.ErrInternal, s.generateAttempts)
}

// Revoke deactivates one of the owner's codes. Revocation is soft so that
// audit rows referencing the code stay meaningful.
func (s *Service) Revoke(ctx context.Context, ownerID, codeID string) error {
	ownerID = strings.TrimSpace(ownerID)
	codeID = strings.TrimSpace(codeID)
	if ownerID == "" || codeID == "" {
		return fmt.Errorf("%w: owner_id and code_id are required", access.ErrInvalidInput)
	}
	return s.store.Revoke(ctx, ownerID, codeID)
}

// ListByOwner returns the owner's codes, newest first.
func (s *Service) ListByOwner(ctx context.Context, ownerID string) ([]Code, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return nil, fmt.Errorf("%w: owner_id is required", access.ErrInvalidInput)
	}
	return s.store.ListByOwner(ctx, ownerID)
}

// Validate checks a presented secret against the resolved resource in the
// order existence, active flag, expiration, usage limit, scope, permission
// sufficiency, then consumes one use. The conditional increment is the
// authoritative usage check: under concurrent validations of a code with
// max_uses=1 exactly one call succeeds.
func (s *Service) Validate(ctx context.Context, presented string, res access.Resource, required access.Permission, client string) (access.Permission, error) {
	if s.guard != nil && !s.guard.Allow(client) {
		return 0, fmt.Errorf("%w: code validation rate exceeded", access.ErrUnauthorized)
	}

	code, err := s.store.FindByDigest(ctx, HashSecret(presented))
	if err != nil {
		return 0, err
	}
	if !code.Active {
		return 0, fmt.Errorf("%w: code has been revoked", access.ErrUnauthorized)
	}
	if !code.ExpiresAt.IsZero() && s.now().After(code.ExpiresAt) {
		return 0, fmt.Errorf("%w: code expired at %s", access.ErrExpired, code.ExpiresAt.UTC().Format(time.RFC3339))
	}
	if code.MaxUses > 0 && code.CurrentUses >= code.MaxUses {
		return 0, fmt.Errorf("%w: code used %d of %d times", access.ErrUsageExceeded, code.CurrentUses, code.MaxUses)
	}
	if !code.Scope.covers(res) {
		return 0, fmt.Errorf("%w: code does not cover resource %s", access.ErrUnauthorized, res.Ref)
	}
	if !code.Permission.Includes(required) {
		return 0, fmt.Errorf("%w: code grants %s, %s requested", access.ErrUnauthorized, code.Permission, required)
	}

	ok, err := s.store.ConsumeUse(ctx, code.ID)
	if err != nil {
		return 0, fmt.Errorf("%w: consume use: %v", access.ErrInternal, err)
	}
	if !ok {
		return 0, fmt.Errorf("%w: usage cap reached", access.ErrUsageExceeded)
	}
	return code.Permission, nil
}
