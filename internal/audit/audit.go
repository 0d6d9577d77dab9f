package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mediagate.org/internal/access"
	"mediagate.org/internal/accesscode"
	"mediagate.org/internal/ids"
)

// Entry is the append-only projection of one completed access decision.
// Entries are write-once: nothing in this engine mutates or deletes them.
type Entry struct {
	ID                  string
	RequesterID         string
	AccessKey           string // digest of the presented code, never plaintext
	ResourceType        string
	ResourceID          int64
	PermissionRequested string
	PermissionGranted   string // empty when denied
	Granted             bool
	Layer               string
	Reason              string
	CreatedAt           time.Time
}

// Store appends immutable entries and serves the owner-facing queries.
type Store interface {
	Append(ctx context.Context, e *Entry) error
	ListByRequester(ctx context.Context, requesterID string, limit int) ([]Entry, error)
	ListByResource(ctx context.Context, resourceType string, resourceID int64, limit int) ([]Entry, error)
	ListDenied(ctx context.Context, limit int) ([]Entry, error)
}

// NewEntry distills a final decision and its per-layer verdicts into one
// persisted row. Per-layer reasons are folded into the reason column so a
// denial stays diagnosable without extra tables.
func NewEntry(final access.Decision, layers []access.Decision) *Entry {
	e := &Entry{
		ID:                  ids.New(),
		RequesterID:         final.Request.RequesterID,
		ResourceType:        string(final.Request.Resource.Type),
		ResourceID:          final.Request.Resource.ID,
		PermissionRequested: final.Requested.String(),
		Granted:             final.Granted,
		Layer:               final.Layer.String(),
		Reason:              foldReasons(final, layers),
		CreatedAt:           final.Request.At.UTC(),
	}
	if final.Granted {
		e.PermissionGranted = final.Permission.String()
	}
	if final.Request.Code != "" {
		e.AccessKey = accesscode.HashSecret(final.Request.Code)
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return e
}

func foldReasons(final access.Decision, layers []access.Decision) string {
	if len(layers) == 0 {
		return final.Reason
	}
	parts := make([]string, 0, len(layers))
	for _, d := range layers {
		parts = append(parts, fmt.Sprintf("%s: %s", d.Layer, d.Reason))
	}
	return final.Reason + " [" + strings.Join(parts, "; ") + "]"
}
