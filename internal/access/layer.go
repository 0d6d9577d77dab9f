package access

// Layer identifies one of the four independent grant pathways. The numeric
// value doubles as selection priority: when several layers grant, ownership
// outranks group membership, which outranks bearer codes, which outrank
// public visibility. Priority only breaks ties among layers that granted; a
// denying layer never competes regardless of its rank.
type Layer uint8

const (
	LayerPublic Layer = iota + 1
	LayerAccessKey
	LayerGroup
	LayerOwnership
)

func (l Layer) String() string {
	switch l {
	case LayerPublic:
		return "public"
	case LayerAccessKey:
		return "access_key"
	case LayerGroup:
		return "group"
	case LayerOwnership:
		return "ownership"
	default:
		return "unknown"
	}
}
