package accesscode

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"mediagate.org/internal/access"
)

// secretEntropyBytes is the entropy of a bearer secret before encoding.
const secretEntropyBytes = 32

// Scope binds a code to exactly one of an explicit resource list or a whole
// group. Group scope is dynamic: a resource added to the group after the
// code was created is covered; an explicit list is frozen at creation.
type Scope struct {
	GroupID   int64 // exclusive with Resources
	Resources []access.ResourceRef
}

// Validate enforces the XOR invariant: a scope names a group or an explicit
// resource list, never both and never neither.
func (s Scope) Validate() error {
	switch {
	case s.GroupID != 0 && len(s.Resources) > 0:
		return fmt.Errorf("%w: scope names both a group and explicit resources", access.ErrInvalidScope)
	case s.GroupID == 0 && len(s.Resources) == 0:
		return fmt.Errorf("%w: scope names neither a group nor explicit resources", access.ErrInvalidScope)
	}
	for _, ref := range s.Resources {
		if !ref.Type.Valid() || ref.ID <= 0 {
			return fmt.Errorf("%w: invalid resource reference %s", access.ErrInvalidScope, ref)
		}
	}
	return nil
}

// covers reports whether the scope includes the resolved resource.
func (s Scope) covers(res access.Resource) bool {
	if s.GroupID != 0 {
		return res.GroupID == s.GroupID
	}
	for _, ref := range s.Resources {
		if ref == res.Ref {
			return true
		}
	}
	return false
}

// Code is a bearer grant. The secret itself is stored only as a SHA-256
// digest; the plaintext exists exactly once, in the Create return value.
type Code struct {
	ID          string
	OwnerID     string
	Description string
	Active      bool
	ExpiresAt   time.Time // zero means the code never expires
	MaxUses     int64     // zero means unlimited
	CurrentUses int64
	Permission  access.Permission
	Scope       Scope
	CreatedAt   time.Time
}

// GenerateSecret returns a fresh bearer secret with 32 bytes of entropy.
func GenerateSecret() (string, error) {
	buf := make([]byte, secretEntropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate code secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashSecret returns the deterministic at-rest form of a bearer secret.
// Lookups happen by digest, so plaintext secrets never touch storage.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
