package resolver

import "github.com/opsgate/opsgate/config"

// Policy helpers live on the Resolver because they read the same loaded
// configuration snapshot as resolution does.

// PolicyFor merges the operation-level and environment-level policy
// fragments for a request. The environment fragment wins on key
// collision; that precedence is a documented design choice, pinned by
// tests, not an accident of merge order.
func (r *Resolver) PolicyFor(environment, operation string) config.Fragment {
	op := r.policy.Operations[operation]
	env := r.policy.Environments[environment].Fragment
	return config.Merge(op, env)
}

// RequiresConfirmation reports whether policy gates the operation on a
// confirmation token in this environment.
//
// With confirmations required, the explicit confirm_all_operations flag
// decides scope when present. When absent and the operation list is
// empty, the legacy reading applies: every verb requires confirmation.
// Config validation rejects that ambiguous authoring at load, so the
// legacy branch only matters for programmatically built policies.
func (r *Resolver) RequiresConfirmation(environment, operation string) bool {
	policy := r.PolicyFor(environment, operation)

	if policy.ConfirmationsRequired == nil || !*policy.ConfirmationsRequired {
		return false
	}

	if policy.ConfirmAllOperations != nil {
		if *policy.ConfirmAllOperations {
			return true
		}
		return containsVerb(policy.ConfirmationOperations, operation)
	}

	if len(policy.ConfirmationOperations) == 0 {
		return true
	}
	return containsVerb(policy.ConfirmationOperations, operation)
}

// IsOperationAllowed evaluates the generic verb gate: first the
// operating mode's allow/deny sets (explicit denial wins), then the
// environment's own allowed-operations list. Both gates must pass.
//
// The gate is active only when modes or environment rules are
// configured. A policy document carrying nothing but limits
// (guardrails, confirmation format) does not restrict verbs; capacity
// bounds and confirmations are enforced by the guardrail checks, not
// here.
func (r *Resolver) IsOperationAllowed(environment, operation, mode string) bool {
	if len(r.policy.OperationModes) == 0 && len(r.policy.Environments) == 0 {
		return true
	}

	modePolicy := r.policy.OperationModes[mode]

	if containsVerb(modePolicy.DeniedVerbs, operation) {
		return false
	}
	if !modePolicy.AllowedVerbs.Contains(operation) {
		return false
	}

	envAllowed := r.policy.Environments[environment].AllowedOperations
	if envAllowed == nil {
		// No environment restriction configured.
		return true
	}
	return envAllowed.Contains(operation)
}

func containsVerb(verbs []string, verb string) bool {
	for _, v := range verbs {
		if v == verb {
			return true
		}
	}
	return false
}
