package access

// Decision is the outcome of evaluating a single layer or of the whole
// orchestration. Reason is server-side diagnostics for logs and owner-facing
// audit views; it must never be echoed to anonymous or unauthorized callers,
// since it can reveal resource existence or ownership.
type Decision struct {
	Granted    bool
	Layer      Layer
	Requested  Permission
	Permission Permission // granted level; zero when denied
	Reason     string
	Request    Request
}

func grant(req Request, layer Layer, required, level Permission, reason string) Decision {
	return Decision{
		Granted:    true,
		Layer:      layer,
		Requested:  required,
		Permission: level,
		Reason:     reason,
		Request:    req,
	}
}

func deny(req Request, layer Layer, required Permission, reason string) Decision {
	return Decision{
		Layer:     layer,
		Requested: required,
		Reason:    reason,
		Request:   req,
	}
}
