package access

import "time"

// Request is the immutable snapshot of one authorization attempt. Callers
// build it per request from session identity (optional), a presented code
// (optional) and transport metadata. It is never persisted as-is; the audit
// log keeps a distilled projection.
type Request struct {
	RequesterID string // empty for anonymous callers
	Code        string // presented bearer code, if any
	Resource    ResourceRef
	IP          string
	UserAgent   string
	Referer     string
	At          time.Time
}

// NewRequest builds an anonymous request for the given resource stamped
// with the current time.
func NewRequest(ref ResourceRef) Request {
	return Request{Resource: ref, At: time.Now().UTC()}
}
