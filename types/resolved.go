package types

import "fmt"

// Resource type categories under a domain/environment.
const (
	ResourceCompute    = "compute"
	ResourceDatabase   = "database"
	ResourceCache      = "cache"
	ResourceMonitoring = "monitoring"
)

// Identity is the logical address of a resource: which service, which
// tier, which category. It is what operators talk about; providers are
// an implementation detail behind it.
type Identity struct {
	Domain       string `json:"domain"`
	Environment  string `json:"environment"`
	ResourceType string `json:"resource_type"`
}

func (id Identity) String() string {
	return fmt.Sprintf("%s/%s/%s", id.Domain, id.Environment, id.ResourceType)
}

// ResolvedResource is the physical descriptor produced by resolving an
// Identity against the service catalog and provider defaults. It is
// constructed fresh per resolve call and must not be mutated afterwards.
type ResolvedResource struct {
	Identity
	Provider      string            `json:"provider"`
	Kind          string            `json:"kind"`
	Refs          []string          `json:"refs"`
	Region        string            `json:"region,omitempty"`
	Account       string            `json:"account,omitempty"`
	Subscription  string            `json:"subscription,omitempty"`
	Project       string            `json:"project,omitempty"`
	ResourceGroup string            `json:"resource_group,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Ref returns the single physical reference for resources that are not
// fanned out. Callers that require exactly one target must use this (or
// check FanOut) rather than silently taking Refs[0].
func (r ResolvedResource) Ref() string {
	if len(r.Refs) == 0 {
		return ""
	}
	return r.Refs[0]
}

// FanOut reports whether the resource maps to more than one physical
// target (e.g. a fleet of VMs behind one logical identity).
func (r ResolvedResource) FanOut() bool {
	return len(r.Refs) > 1
}

// IndexedResource is a provider-inventory row: a logical identity plus
// one of its physical references.
type IndexedResource struct {
	Identity
	Ref string `json:"ref"`
}
