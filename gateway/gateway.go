// Package gateway composes the control core: every operation request
// passes guardrails first, then resolution, is journaled, and only on
// success is handed to the registered provider adapter.
package gateway

import (
	"context"
	"fmt"

	"github.com/opsgate/opsgate/audit"
	"github.com/opsgate/opsgate/guardrails"
	"github.com/opsgate/opsgate/providers"
	"github.com/opsgate/opsgate/resolver"
	"github.com/opsgate/opsgate/telemetry"
	"github.com/opsgate/opsgate/types"
)

// DefaultMode is the operating mode assumed when a request does not
// carry one.
const DefaultMode = "operator"

// Request is one fully-parsed operation request: the front end that
// turns an external call into this tuple is upstream of the core.
type Request struct {
	Verb         string
	Domain       string
	Environment  string
	ResourceType string

	// Provider targets verbs that address a physical endpoint directly
	// (isolation) instead of going through catalog resolution.
	Provider string
	Hostname string

	TargetCapacity int
	Version        string

	Mode         string
	ConfirmToken string
	Params       map[string]any
}

// Result is a successful operation outcome.
type Result struct {
	Resolved *types.ResolvedResource
	Output   map[string]any
}

// Gateway wires resolver, guardrails, audit and the provider registry
// together.
type Gateway struct {
	resolver *resolver.Resolver
	guards   *guardrails.Guardrails
	audit    *audit.Log
	registry *providers.Registry
	logger   *telemetry.Logger
}

// New builds a Gateway over already-constructed components.
func New(res *resolver.Resolver, guards *guardrails.Guardrails, log *audit.Log, registry *providers.Registry) *Gateway {
	return &Gateway{
		resolver: res,
		guards:   guards,
		audit:    log,
		registry: registry,
		logger:   telemetry.NewLogger("gateway"),
	}
}

// Execute runs a request end to end: verb gate, verb-specific guardrail
// check, resolution, audit, adapter dispatch. Every failure is journaled
// before it is returned.
func (gw *Gateway) Execute(ctx context.Context, req Request) (*Result, error) {
	if req.Mode == "" {
		req.Mode = DefaultMode
	}
	params := auditParams(req)

	if !gw.resolver.IsOperationAllowed(req.Environment, req.Verb, req.Mode) {
		denyErr := &types.PolicyDeniedError{Reason: fmt.Sprintf(
			"%s is not allowed in %s for mode %s", req.Verb, req.Environment, req.Mode)}
		gw.logFailure(req.Verb, denyErr, params)
		operationsTotal.WithLabelValues(req.Verb, "denied").Inc()
		return nil, denyErr
	}

	// Redeem after the verb gate: a mode denial must not burn a valid
	// token the caller could still use on a permitted resubmission.
	confirmed, err := gw.redeemToken(req, params)
	if err != nil {
		operationsTotal.WithLabelValues(req.Verb, "invalid_confirmation").Inc()
		return nil, err
	}

	if err := gw.runCheck(ctx, req, confirmed, params); err != nil {
		return nil, err
	}

	resolved, err := gw.resolveTarget(ctx, req)
	if err != nil {
		gw.logFailure(req.Verb, err, params)
		operationsTotal.WithLabelValues(req.Verb, "resolve_failed").Inc()
		return nil, err
	}

	if err := gw.audit.LogOperation(req.Verb, params); err != nil {
		gw.logger.LogAuditWrite(ctx, req.Verb, err)
		return nil, err
	}

	adapter, err := gw.registry.Get(resolved.Provider)
	if err != nil {
		gw.logFailure(req.Verb, err, params)
		operationsTotal.WithLabelValues(req.Verb, "provider_unavailable").Inc()
		return nil, err
	}

	output, err := adapter.Dispatch(ctx, req.Verb, *resolved, req.Params)
	if err != nil {
		gw.logFailure(req.Verb, err, params)
		operationsTotal.WithLabelValues(req.Verb, "failed").Inc()
		return nil, fmt.Errorf("%s dispatch failed: %w", resolved.Provider, err)
	}

	if err := gw.audit.LogSuccess(req.Verb, output, params); err != nil {
		gw.logger.LogAuditWrite(ctx, req.Verb, err)
	}
	operationsTotal.WithLabelValues(req.Verb, "success").Inc()

	return &Result{Resolved: resolved, Output: output}, nil
}

// redeemToken validates a presented confirmation token. An invalid or
// expired token is journaled as a security event.
func (gw *Gateway) redeemToken(req Request, params map[string]any) (bool, error) {
	if req.ConfirmToken == "" {
		return false, nil
	}

	if !gw.guards.Confirm(req.ConfirmToken) {
		invalidErr := &types.ConfirmationInvalidError{Token: req.ConfirmToken}
		if err := gw.audit.LogSecurityEvent("invalid_confirmation_token", audit.SeverityMedium, map[string]any{
			"operation":   req.Verb,
			"domain":      req.Domain,
			"environment": req.Environment,
		}); err != nil {
			gw.logger.LogAuditWrite(context.Background(), req.Verb, err)
		}
		return false, invalidErr
	}

	confirmationsRedeemed.Inc()
	return true, nil
}

// runCheck applies the verb-specific guardrail check. A verdict that
// requires confirmation passes when the caller already redeemed a valid
// token; the check's freshly issued token is then revoked.
func (gw *Gateway) runCheck(ctx context.Context, req Request, confirmed bool, params map[string]any) error {
	verdict := gw.checkVerb(ctx, req)

	if verdict.Allowed() {
		return nil
	}

	if verdict.RequiresConfirmation() {
		if confirmed {
			gw.guards.Revoke(verdict.Token())
			return nil
		}
		confirmationsIssued.Inc()
	}

	err := verdict.Err()
	gw.logFailure(req.Verb, err, params)
	if verdict.RequiresConfirmation() {
		operationsTotal.WithLabelValues(req.Verb, "confirmation_required").Inc()
	} else {
		operationsTotal.WithLabelValues(req.Verb, "denied").Inc()
	}
	return err
}

func (gw *Gateway) checkVerb(ctx context.Context, req Request) types.Verdict {
	switch req.Verb {
	case types.OpScale:
		return gw.guards.CheckScale(ctx, req.Domain, req.Environment, req.TargetCapacity)
	case types.OpRestart:
		return gw.guards.CheckRestart(ctx, req.Domain, req.Environment)
	case types.OpDeploy:
		return gw.guards.CheckDeploy(ctx, req.Domain, req.Environment, req.Version)
	case types.OpIsolate:
		return gw.guards.CheckIsolate(ctx, req.Hostname)
	default:
		// Read-only verbs pass; they were already through the mode and
		// environment gates.
		return types.Allow()
	}
}

// resolveTarget maps the request to a physical descriptor. Verbs that
// address an endpoint directly bypass the catalog.
func (gw *Gateway) resolveTarget(ctx context.Context, req Request) (*types.ResolvedResource, error) {
	if req.Verb == types.OpIsolate {
		if req.Provider == "" {
			return nil, &types.ProviderUnavailableError{Provider: ""}
		}
		return &types.ResolvedResource{
			Identity: types.Identity{Domain: req.Domain, Environment: req.Environment},
			Provider: req.Provider,
			Kind:     "endpoint",
			Refs:     []string{req.Hostname},
		}, nil
	}

	return gw.resolver.Resolve(ctx, req.Domain, req.Environment, req.ResourceType)
}

func (gw *Gateway) logFailure(operation string, opErr error, params map[string]any) {
	if err := gw.audit.LogError(operation, opErr, params); err != nil {
		gw.logger.LogAuditWrite(context.Background(), operation, err)
	}
}

func auditParams(req Request) map[string]any {
	params := map[string]any{
		"domain":      req.Domain,
		"environment": req.Environment,
		"mode":        req.Mode,
	}
	if req.ResourceType != "" {
		params["resource_type"] = req.ResourceType
	}
	if req.Verb == types.OpScale {
		params["target_capacity"] = req.TargetCapacity
	}
	if req.Version != "" {
		params["version"] = req.Version
	}
	if req.Hostname != "" {
		params["hostname"] = req.Hostname
	}
	return params
}
