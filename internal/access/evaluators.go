package access

import (
	"context"
	"errors"
	"fmt"
)

// Evaluator is one independent grant pathway. Evaluators never return an
// error: a missing prerequisite or a storage fault becomes a denial, so the
// orchestrator can compare all four verdicts uniformly.
type Evaluator interface {
	Layer() Layer
	Evaluate(ctx context.Context, req Request, res Resource, required Permission) Decision
}

// publicEvaluator grants read on publicly visible resources. Public
// visibility never implies anything above read.
type publicEvaluator struct{}

func (publicEvaluator) Layer() Layer { return LayerPublic }

func (publicEvaluator) Evaluate(_ context.Context, req Request, res Resource, required Permission) Decision {
	if !res.Public {
		return deny(req, LayerPublic, required, "resource is not public")
	}
	if required > PermissionRead {
		return deny(req, LayerPublic, required, fmt.Sprintf("public visibility grants read only, %s requested", required))
	}
	return grant(req, LayerPublic, required, PermissionRead, "resource is public")
}

// accessKeyEvaluator delegates to the code subsystem and collapses its
// sentinel outcomes into denial reasons.
type accessKeyEvaluator struct {
	codes CodeValidator
}

func (accessKeyEvaluator) Layer() Layer { return LayerAccessKey }

func (e accessKeyEvaluator) Evaluate(ctx context.Context, req Request, res Resource, required Permission) Decision {
	if req.Code == "" {
		return deny(req, LayerAccessKey, required, "no access code presented")
	}
	level, err := e.codes.Validate(ctx, req.Code, res, required, req.IP)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return deny(req, LayerAccessKey, required, "unknown access code")
		case errors.Is(err, ErrExpired),
			errors.Is(err, ErrUsageExceeded),
			errors.Is(err, ErrUnauthorized):
			return deny(req, LayerAccessKey, required, err.Error())
		default:
			// Storage fault: fail closed, keep the cause for the audit trail.
			return deny(req, LayerAccessKey, required, fmt.Sprintf("code validation failed: %v", err))
		}
	}
	return grant(req, LayerAccessKey, required, level, "access code accepted")
}

// groupEvaluator grants the permission mapped from the requester's role in
// the resource's group.
type groupEvaluator struct {
	roles RoleResolver
}

func (groupEvaluator) Layer() Layer { return LayerGroup }

func (e groupEvaluator) Evaluate(ctx context.Context, req Request, res Resource, required Permission) Decision {
	if req.RequesterID == "" {
		return deny(req, LayerGroup, required, "no authenticated requester")
	}
	if res.GroupID == 0 {
		return deny(req, LayerGroup, required, "resource is not attached to a group")
	}
	level, ok, err := e.roles.PermissionOf(ctx, req.RequesterID, res.GroupID)
	if err != nil {
		return deny(req, LayerGroup, required, fmt.Sprintf("membership lookup failed: %v", err))
	}
	if !ok {
		return deny(req, LayerGroup, required, "requester is not a member of the resource group")
	}
	if !level.Includes(required) {
		return deny(req, LayerGroup, required, fmt.Sprintf("group role grants %s, %s requested", level, required))
	}
	return grant(req, LayerGroup, required, level, "group membership grants access")
}

// ownershipEvaluator grants admin unconditionally to the resource owner.
type ownershipEvaluator struct{}

func (ownershipEvaluator) Layer() Layer { return LayerOwnership }

func (ownershipEvaluator) Evaluate(_ context.Context, req Request, res Resource, required Permission) Decision {
	if req.RequesterID == "" || req.RequesterID != res.OwnerID {
		return deny(req, LayerOwnership, required, "requester does not own the resource")
	}
	return grant(req, LayerOwnership, required, PermissionAdmin, "requester owns the resource")
}
