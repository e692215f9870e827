package types

import (
	"fmt"
	"strings"
)

// NotFoundError reports a failed catalog lookup. Level names the lookup
// stage that failed (domain, environment, resource_type) and Available
// enumerates the valid keys at that stage so the caller can correct the
// request without consulting the catalog.
type NotFoundError struct {
	Level     string
	Value     string
	Scope     string
	Available []string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("%s %q not found", e.Level, e.Value)
	if e.Scope != "" {
		msg += " for " + e.Scope
	}
	return fmt.Sprintf("%s, available: %s", msg, strings.Join(e.Available, ", "))
}

// PolicyDeniedError is a hard denial: capacity bound violated, blackout
// window, or explicit verb denial. Terminal for the request.
type PolicyDeniedError struct {
	Reason string
}

func (e *PolicyDeniedError) Error() string {
	return "operation denied by policy: " + e.Reason
}

// ConfirmationRequiredError is a soft denial: the operation is
// legitimate but gated. The caller must resubmit with Token before it
// expires.
type ConfirmationRequiredError struct {
	Token  string
	Reason string
}

func (e *ConfirmationRequiredError) Error() string {
	return "confirmation required: " + e.Reason
}

// ConfirmationInvalidError means the presented token is unknown or
// expired; the caller restarts the guard flow from scratch.
type ConfirmationInvalidError struct {
	Token string
}

func (e *ConfirmationInvalidError) Error() string {
	return fmt.Sprintf("confirmation token %q is invalid or expired", e.Token)
}

// ProviderUnavailableError means the resolved provider has no adapter
// registered with the dispatch layer.
type ProviderUnavailableError struct {
	Provider string
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("no adapter registered for provider %q", e.Provider)
}
