// Package guardrails evaluates mutating operations against safety
// policy before they are allowed to execute, and owns the lifecycle of
// pending confirmation tokens.
package guardrails

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opsgate/opsgate/config"
	"github.com/opsgate/opsgate/telemetry"
	"github.com/opsgate/opsgate/types"
)

// ConfirmationTTL is the fixed confirmation window. Tokens self-expire
// after it; there is no other timeout semantics in the core.
const ConfirmationTTL = 300 * time.Second

const (
	defaultMaxInstances = 100
	defaultMinInstances = 1
)

// ConfirmationPolicy answers whether policy gates an operation on a
// confirmation token. The resolver implements it over the same loaded
// policy snapshot the guardrails read their limits from.
type ConfirmationPolicy interface {
	RequiresConfirmation(environment, operation string) bool
}

type pendingConfirmation struct {
	operation   string
	domain      string
	environment string
	hostname    string
	details     map[string]any
	createdAt   time.Time
	expiresAt   time.Time
}

// Guardrails owns the pending-confirmation table. The table is explicit
// instance state, not a package-level singleton, so its lifetime is the
// lifetime of the Guardrails value and tests can isolate it.
type Guardrails struct {
	policy  *config.PolicyDoc
	confirm ConfirmationPolicy
	gate    *RegoGate
	tokens  tokenGenerator
	logger  *telemetry.Logger
	now     func() time.Time

	mu      sync.Mutex
	pending map[string]pendingConfirmation
}

// New builds a Guardrails engine over a loaded policy snapshot.
func New(policy *config.PolicyDoc, confirm ConfirmationPolicy) *Guardrails {
	if policy == nil {
		policy = &config.PolicyDoc{}
	}
	return &Guardrails{
		policy:  policy,
		confirm: confirm,
		tokens:  tokenGenerator{cfg: policy.Confirmations.Token},
		logger:  telemetry.NewLogger("guardrails"),
		now:     time.Now,
		pending: make(map[string]pendingConfirmation),
	}
}

// AttachRegoGate installs an optional operator-supplied Rego gate that
// is evaluated before the built-in checks. A gate deny is a hard deny.
func (g *Guardrails) AttachRegoGate(gate *RegoGate) {
	g.gate = gate
}

// CheckScale verifies a scale request. Capacity bounds run before the
// confirmation check so a badly-scoped request is rejected even in
// environments that never require confirmation.
func (g *Guardrails) CheckScale(ctx context.Context, domain, environment string, targetCapacity int) types.Verdict {
	if v := g.evalGate(ctx, types.OpScale, domain, environment, map[string]any{
		"target_capacity": targetCapacity,
	}); !v.Allowed() {
		return v
	}

	maxSize := g.maxScaleSize(environment)
	if targetCapacity > maxSize {
		return g.logged(ctx, types.OpScale, domain, environment, types.Deny(fmt.Sprintf(
			"target capacity %d exceeds maximum %d for %s", targetCapacity, maxSize, environment)))
	}

	minSize := g.policy.Guardrails.Scaling.MinInstances.For(environment, defaultMinInstances)
	if targetCapacity < minSize {
		return g.logged(ctx, types.OpScale, domain, environment, types.Deny(fmt.Sprintf(
			"target capacity %d below minimum %d for %s", targetCapacity, minSize, environment)))
	}

	if g.confirm.RequiresConfirmation(environment, types.OpScale) {
		token := g.issue(types.OpScale, domain, environment, "", map[string]any{
			"target_capacity": targetCapacity,
		})
		return g.logged(ctx, types.OpScale, domain, environment, types.NeedConfirmation(token, fmt.Sprintf(
			"scaling %s in %s requires confirmation, resubmit with token %s", domain, environment, token)))
	}

	return g.logged(ctx, types.OpScale, domain, environment, types.Allow())
}

// CheckRestart verifies a restart request.
func (g *Guardrails) CheckRestart(ctx context.Context, domain, environment string) types.Verdict {
	if v := g.evalGate(ctx, types.OpRestart, domain, environment, nil); !v.Allowed() {
		return v
	}

	if g.confirm.RequiresConfirmation(environment, types.OpRestart) {
		token := g.issue(types.OpRestart, domain, environment, "", nil)
		return g.logged(ctx, types.OpRestart, domain, environment, types.NeedConfirmation(token, fmt.Sprintf(
			"restarting %s in %s requires confirmation, resubmit with token %s", domain, environment, token)))
	}

	return g.logged(ctx, types.OpRestart, domain, environment, types.Allow())
}

// CheckDeploy verifies a deploy request. A blackout window is a hard
// deny and takes precedence over any confirmation requirement.
func (g *Guardrails) CheckDeploy(ctx context.Context, domain, environment, version string) types.Verdict {
	if v := g.evalGate(ctx, types.OpDeploy, domain, environment, map[string]any{
		"version": version,
	}); !v.Allowed() {
		return v
	}

	restrictions := g.policy.Environments[environment].DeploymentRestrictions
	now := g.now()
	for _, window := range restrictions.BlackoutWindows {
		if window.Contains(now) {
			return g.logged(ctx, types.OpDeploy, domain, environment, types.Deny(fmt.Sprintf(
				"deployments to %s are blocked by a blackout window", environment)))
		}
	}

	if g.confirm.RequiresConfirmation(environment, types.OpDeploy) {
		token := g.issue(types.OpDeploy, domain, environment, "", map[string]any{
			"version": version,
		})
		return g.logged(ctx, types.OpDeploy, domain, environment, types.NeedConfirmation(token, fmt.Sprintf(
			"deploying %s to %s in %s requires confirmation, resubmit with token %s",
			version, domain, environment, token)))
	}

	return g.logged(ctx, types.OpDeploy, domain, environment, types.Allow())
}

// CheckIsolate verifies an endpoint isolation request. Isolation always
// requires confirmation regardless of environment policy; that is a
// fixed safety invariant, not configuration.
func (g *Guardrails) CheckIsolate(ctx context.Context, hostname string) types.Verdict {
	if v := g.evalGate(ctx, types.OpIsolate, "", "", map[string]any{
		"hostname": hostname,
	}); !v.Allowed() {
		return v
	}

	if max := g.policy.Guardrails.Security.MaxEndpointsIsolate; max > 0 {
		if pending := g.pendingIsolations(); pending >= max {
			return g.logged(ctx, types.OpIsolate, "", "", types.Deny(fmt.Sprintf(
				"%d isolation requests already pending, limit is %d", pending, max)))
		}
	}

	token := g.issue(types.OpIsolate, "", "", hostname, nil)
	return g.logged(ctx, types.OpIsolate, "", "", types.NeedConfirmation(token, fmt.Sprintf(
		"isolating %s will block user access, resubmit with token %s to confirm", hostname, token)))
}

// Confirm redeems a confirmation token. Tokens are single use: a
// redeemed or expired token can never be redeemed again, and concurrent
// calls racing on the same token let at most one win.
func (g *Guardrails) Confirm(token string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.pending[token]
	if !ok {
		return false
	}

	delete(g.pending, token)
	if g.now().After(p.expiresAt) {
		g.logger.Debug().Str("operation", p.operation).Msg("confirmation token expired")
		return false
	}

	g.logger.Info().
		Str("operation", p.operation).
		Str("domain", p.domain).
		Str("environment", p.environment).
		Msg("confirmation token redeemed")
	return true
}

// Revoke silently discards a pending token. The gateway uses it to
// retire the fresh token a check issues when the caller already
// presented a valid one for the same operation.
func (g *Guardrails) Revoke(token string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.pending, token)
}

// SweepExpired removes expired tokens eagerly and returns how many were
// dropped. Confirm already deletes lazily; the sweep only keeps the
// table small in long-lived daemon sessions.
func (g *Guardrails) SweepExpired() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	dropped := 0
	for token, p := range g.pending {
		if now.After(p.expiresAt) {
			delete(g.pending, token)
			dropped++
		}
	}
	return dropped
}

// PendingCount returns the number of unredeemed tokens.
func (g *Guardrails) PendingCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// issue records a pending confirmation and returns its token. The token
// is unique among currently pending tokens.
func (g *Guardrails) issue(operation, domain, environment, hostname string, details map[string]any) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	token := g.tokens.generate(func(candidate string) bool {
		_, taken := g.pending[candidate]
		return taken
	})

	now := g.now()
	g.pending[token] = pendingConfirmation{
		operation:   operation,
		domain:      domain,
		environment: environment,
		hostname:    hostname,
		details:     details,
		createdAt:   now,
		expiresAt:   now.Add(ConfirmationTTL),
	}
	return token
}

func (g *Guardrails) pendingIsolations() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	count := 0
	for _, p := range g.pending {
		if p.operation == types.OpIsolate {
			count++
		}
	}
	return count
}

func (g *Guardrails) maxScaleSize(environment string) int {
	if override := g.policy.Environments[environment].MaxScaleSize; override != nil {
		return *override
	}
	return g.policy.Guardrails.Scaling.MaxInstances.For(environment, defaultMaxInstances)
}

// evalGate runs the optional Rego gate. Gate evaluation failures deny:
// an unevaluable safety policy must not fail open.
func (g *Guardrails) evalGate(ctx context.Context, operation, domain, environment string, params map[string]any) types.Verdict {
	if g.gate == nil {
		return types.Allow()
	}

	allowed, reason, err := g.gate.Evaluate(ctx, GateInput{
		Operation:   operation,
		Domain:      domain,
		Environment: environment,
		Params:      params,
		Timestamp:   g.now(),
	})
	if err != nil {
		g.logger.WithContext(ctx).Error().Err(err).
			Str("operation", operation).
			Msg("rego gate evaluation failed")
		return types.Deny("policy evaluation failed: " + err.Error())
	}
	if !allowed {
		return g.logged(ctx, operation, domain, environment, types.Deny(reason))
	}
	return types.Allow()
}

func (g *Guardrails) logged(ctx context.Context, operation, domain, environment string, v types.Verdict) types.Verdict {
	outcome := "allowed"
	switch {
	case v.RequiresConfirmation():
		outcome = "confirmation_required"
	case !v.Allowed():
		outcome = "denied"
	}
	g.logger.LogVerdict(ctx, operation, domain, environment, outcome, v.Reason())
	return v
}
