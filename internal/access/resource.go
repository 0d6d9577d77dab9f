package access

import (
	"fmt"
	"strconv"
	"strings"
)

// ResourceType is the closed set of protected resource kinds. Store
// implementations dispatch on it with an exhaustive switch: adding a kind
// means adding one constant here and one arm per query, never an
// interpolated table name.
type ResourceType string

const (
	ResourceVideo    ResourceType = "video"
	ResourceImage    ResourceType = "image"
	ResourceDocument ResourceType = "document"
	ResourceFile     ResourceType = "file"
)

// Valid reports whether t is a known resource kind.
func (t ResourceType) Valid() bool {
	switch t {
	case ResourceVideo, ResourceImage, ResourceDocument, ResourceFile:
		return true
	}
	return false
}

// ResourceRef addresses one protected resource.
type ResourceRef struct {
	Type ResourceType
	ID   int64
}

func (r ResourceRef) String() string {
	return string(r.Type) + "/" + strconv.FormatInt(r.ID, 10)
}

// ParseResourceRef reads the "type:id" form used by CLI flags and audit rows.
func ParseResourceRef(s string) (ResourceRef, error) {
	kind, rawID, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return ResourceRef{}, fmt.Errorf("%w: resource reference must look like video:42, got %q", ErrInvalidInput, s)
	}
	t := ResourceType(strings.ToLower(kind))
	if !t.Valid() {
		return ResourceRef{}, fmt.Errorf("%w: unknown resource type %q", ErrInvalidInput, kind)
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return ResourceRef{}, fmt.Errorf("%w: invalid resource id %q", ErrInvalidInput, rawID)
	}
	return ResourceRef{Type: t, ID: id}, nil
}

// Resource is the point-lookup projection the engine needs: visibility,
// owner and optional group attachment. GroupID is zero when the resource is
// not attached to any group.
type Resource struct {
	Ref     ResourceRef
	OwnerID string
	Public  bool
	GroupID int64
}
