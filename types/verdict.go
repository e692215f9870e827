package types

// Verb names for mutating operations. These are the names policy
// documents and audit entries use; keep them stable.
const (
	OpStatus  = "status"
	OpScale   = "scale"
	OpRestart = "restart"
	OpDeploy  = "deploy"
	OpList    = "list"
	OpIsolate = "isolate_endpoint"
	OpLogs    = "get_logs"

	// OpFailover is reserved for provider-level failover; the core only
	// knows it as a critical operation for alerting purposes.
	OpFailover = "failover"
)

type verdictKind int

const (
	verdictAllowed verdictKind = iota
	verdictDenied
	verdictConfirmationRequired
)

// Verdict is the outcome of a guardrail check. It has exactly three
// shapes: allowed, denied with a reason, or denied pending confirmation
// with a token and a reason. The zero value is an allowed verdict.
type Verdict struct {
	kind   verdictKind
	reason string
	token  string
}

// Allow returns an allowed verdict.
func Allow() Verdict {
	return Verdict{kind: verdictAllowed}
}

// Deny returns a hard-deny verdict with a human-readable reason.
func Deny(reason string) Verdict {
	return Verdict{kind: verdictDenied, reason: reason}
}

// NeedConfirmation returns a soft-deny verdict carrying the confirmation
// token the caller must resubmit with.
func NeedConfirmation(token, reason string) Verdict {
	return Verdict{kind: verdictConfirmationRequired, token: token, reason: reason}
}

// Allowed reports whether the operation may proceed.
func (v Verdict) Allowed() bool { return v.kind == verdictAllowed }

// RequiresConfirmation reports whether the operation is gated on a
// confirmation token rather than denied outright.
func (v Verdict) RequiresConfirmation() bool { return v.kind == verdictConfirmationRequired }

// Reason returns the denial reason; empty for allowed verdicts.
func (v Verdict) Reason() string { return v.reason }

// Token returns the confirmation token; empty unless the verdict
// requires confirmation.
func (v Verdict) Token() string { return v.token }

// Err converts a non-allowed verdict into its error-taxonomy form.
// Allowed verdicts return nil.
func (v Verdict) Err() error {
	switch v.kind {
	case verdictDenied:
		return &PolicyDeniedError{Reason: v.reason}
	case verdictConfirmationRequired:
		return &ConfirmationRequiredError{Token: v.token, Reason: v.reason}
	default:
		return nil
	}
}
