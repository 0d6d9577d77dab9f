package access

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mediagate.org/internal/obs"
)

const deniedNoLayerReason = "no access layer granted permission"

// Service reconciles the four grant pathways into one deterministic
// decision and hands every outcome to the audit sink.
type Service struct {
	repo       Repository
	evaluators []Evaluator
	audit      AuditSink
	now        func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithAuditSink attaches the durable audit trail. Without a sink decisions
// are still correct but unrecorded; production wiring always sets one.
func WithAuditSink(sink AuditSink) Option {
	return func(s *Service) {
		s.audit = sink
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

// NewService wires the orchestrator with its four layer evaluators.
func NewService(repo Repository, codes CodeValidator, roles RoleResolver, opts ...Option) (*Service, error) {
	if repo == nil {
		return nil, errors.New("access: repository is required")
	}
	if codes == nil {
		return nil, errors.New("access: code validator is required")
	}
	if roles == nil {
		return nil, errors.New("access: role resolver is required")
	}
	s := &Service{
		repo: repo,
		evaluators: []Evaluator{
			publicEvaluator{},
			accessKeyEvaluator{codes: codes},
			groupEvaluator{roles: roles},
			ownershipEvaluator{},
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// CheckAccess decides whether the request may act on its target resource at
// the required level. The only errors it surfaces are ErrNotFound for an
// absent resource and wrapped ErrInternal for storage faults during
// resolution; every other outcome, including deadline expiry, is an ordinary
// denied decision. Callers must treat a returned error as a denial.
func (s *Service) CheckAccess(ctx context.Context, req Request, required Permission) (Decision, error) {
	start := s.now()
	if !required.Valid() {
		return Decision{}, fmt.Errorf("%w: permission %d is not defined", ErrInvalidInput, required)
	}
	if !req.Resource.Type.Valid() {
		return Decision{}, fmt.Errorf("%w: unknown resource type %q", ErrInvalidInput, req.Resource.Type)
	}
	if req.At.IsZero() {
		req.At = start.UTC()
	}

	res, err := s.resolve(ctx, req.Resource)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Decision{}, fmt.Errorf("%w: resource %s", ErrNotFound, req.Resource)
		}
		return Decision{}, fmt.Errorf("%w: resolve %s: %v", ErrInternal, req.Resource, err)
	}

	// Every layer runs to completion: the audit trail needs all four
	// verdicts, and the evaluations share no mutable state.
	results := make([]Decision, len(s.evaluators))
	var wg sync.WaitGroup
	for i, ev := range s.evaluators {
		wg.Add(1)
		go func(i int, ev Evaluator) {
			defer wg.Done()
			results[i] = ev.Evaluate(ctx, req, res, required)
		}(i, ev)
	}
	wg.Wait()

	final := s.selectDecision(req, required, results)
	if ctxErr := ctx.Err(); ctxErr != nil {
		// Deadline or cancellation during evaluation: fail closed.
		final = deny(req, LayerPublic, required, fmt.Sprintf("evaluation interrupted: %v", ctxErr))
	}

	if s.audit != nil {
		s.audit.Record(final, results)
	}
	obs.ObserveDecision(final.Layer.String(), final.Granted, s.now().Sub(start))
	return final, nil
}

// selectDecision picks the granting layer with the highest priority. When no
// layer grants, the denial is reported at the public layer with a generic
// policy-level reason; the per-layer reasons stay in the audit entry.
func (s *Service) selectDecision(req Request, required Permission, results []Decision) Decision {
	best := -1
	for i := range results {
		if !results[i].Granted {
			continue
		}
		if best < 0 || results[i].Layer > results[best].Layer {
			best = i
		}
	}
	if best < 0 {
		return deny(req, LayerPublic, required, deniedNoLayerReason)
	}
	return results[best]
}

// resolve fetches the target's visibility, owner and group once, so the
// evaluators work from a single consistent snapshot.
func (s *Service) resolve(ctx context.Context, ref ResourceRef) (Resource, error) {
	public, err := s.repo.IsPublic(ctx, ref)
	if err != nil {
		return Resource{}, err
	}
	owner, err := s.repo.OwnerOf(ctx, ref)
	if err != nil {
		return Resource{}, err
	}
	groupID, grouped, err := s.repo.GroupOf(ctx, ref)
	if err != nil {
		return Resource{}, err
	}
	res := Resource{Ref: ref, OwnerID: owner, Public: public}
	if grouped {
		res.GroupID = groupID
	}
	return res, nil
}
