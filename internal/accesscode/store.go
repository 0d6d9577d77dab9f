package accesscode

import "context"

// Store persists access codes. FindByDigest returns access.ErrNotFound for
// an unknown digest and Create returns access.ErrConflict when the digest
// collides with an existing row.
type Store interface {
	Create(ctx context.Context, code *Code, digest string) error
	FindByDigest(ctx context.Context, digest string) (Code, error)
	// Revoke deactivates the owner's code; access.ErrNotFound when the code
	// does not exist or belongs to someone else.
	Revoke(ctx context.Context, ownerID, codeID string) error
	ListByOwner(ctx context.Context, ownerID string) ([]Code, error)
	// ConsumeUse atomically increments the usage counter while it is below
	// the cap. ok=false means the cap was already reached; that verdict is
	// authoritative even when an earlier read suggested capacity remained.
	ConsumeUse(ctx context.Context, codeID string) (bool, error)
}
